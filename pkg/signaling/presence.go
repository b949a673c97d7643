package signaling

import (
	"sort"
	"sync"
	"time"

	"github.com/oceanpulse/livelink/pkg/api"
)

// DeviceRecord is the durable presence view of one device. Records are
// kept with online=false after disconnect, never hard-deleted.
type DeviceRecord struct {
	DeviceId   string
	UserId     string
	DeviceName string
	DeviceType string
	Online     bool
	LastActive time.Time
}

// Directory derives per-user device lists from registry events.
type Directory struct {
	mu      sync.Mutex
	devices map[string]*DeviceRecord
	byUser  map[string]map[string]*DeviceRecord
}

func NewDirectory() *Directory {
	return &Directory{
		devices: make(map[string]*DeviceRecord, 16),
		byUser:  make(map[string]map[string]*DeviceRecord, 16),
	}
}

// Claim upserts the device record on connection registration. A device
// id stays with the account that first registered it: a claim under a
// different user is rejected, it never reassigns the record or touches
// the owner's routing.
func (d *Directory) Claim(c *Conn) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.devices[c.DeviceId]
	if ok && rec.UserId != c.UserId {
		return ErrNotAuthorized
	}
	if !ok {
		rec = &DeviceRecord{DeviceId: c.DeviceId, UserId: c.UserId}
		d.devices[c.DeviceId] = rec
		if _, ok := d.byUser[c.UserId]; !ok {
			d.byUser[c.UserId] = make(map[string]*DeviceRecord, 4)
		}
		d.byUser[c.UserId][c.DeviceId] = rec
	}
	rec.DeviceName = c.DeviceName
	rec.DeviceType = c.DeviceType
	rec.Online = true
	rec.LastActive = time.Now()
	return nil
}

// MarkOffline flips the record when the last connection for the device
// goes away.
func (d *Directory) MarkOffline(deviceId string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec, ok := d.devices[deviceId]; ok {
		rec.Online = false
		rec.LastActive = time.Now()
	}
}

// Resolve returns a copy of the device record.
func (d *Directory) Resolve(deviceId string) (DeviceRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec, ok := d.devices[deviceId]; ok {
		return *rec, true
	}
	return DeviceRecord{}, false
}

// FreshestOnline picks the most recently active online device of a
// user, skipping exceptDeviceId so a request routed by user id never
// lands back on the requester's own device.
func (d *Directory) FreshestOnline(userId, exceptDeviceId string) (DeviceRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var best *DeviceRecord
	for _, rec := range d.byUser[userId] {
		if !rec.Online || rec.DeviceId == exceptDeviceId {
			continue
		}
		if best == nil || rec.LastActive.After(best.LastActive) {
			best = rec
		}
	}
	if best == nil {
		return DeviceRecord{}, false
	}
	return *best, true
}

// DevicesVisibleTo lists every device ever registered under the user,
// ordered by last-active descending.
func (d *Directory) DevicesVisibleTo(userId string) []api.Device {
	d.mu.Lock()
	recs := make([]DeviceRecord, 0, len(d.byUser[userId]))
	for _, rec := range d.byUser[userId] {
		recs = append(recs, *rec)
	}
	d.mu.Unlock()
	sort.Slice(recs, func(i, j int) bool { return recs[i].LastActive.After(recs[j].LastActive) })
	out := make([]api.Device, len(recs))
	for i, rec := range recs {
		out[i] = api.Device{
			DeviceId:   rec.DeviceId,
			DeviceName: rec.DeviceName,
			DeviceType: rec.DeviceType,
			Online:     rec.Online,
			LastActive: rec.LastActive.Unix(),
		}
	}
	return out
}

// OnlineCount reports the number of online devices across all users.
func (d *Directory) OnlineCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, rec := range d.devices {
		if rec.Online {
			n++
		}
	}
	return n
}
