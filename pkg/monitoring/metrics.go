package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "livelink",
		Name:      "open_connections",
		Help:      "Number of open client connections.",
	})
	OnlineDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "livelink",
		Name:      "online_devices",
		Help:      "Number of devices with at least one open connection.",
	})
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "livelink",
		Name:      "live_sessions",
		Help:      "Number of sessions in connecting or active state.",
	})
	RelayedSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livelink",
		Name:      "relayed_signals_total",
		Help:      "Negotiation payloads forwarded between peers.",
	}, []string{"signal_type"})
	ExpiredRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "livelink",
		Name:      "expired_requests_total",
		Help:      "Pending session requests expired by the sweep.",
	})
)

func SetActiveSessions(n int) { ActiveSessions.Set(float64(n)) }
func SetOpenConnections(n int) { OpenConnections.Set(float64(n)) }
func SetOnlineDevices(n int) { OnlineDevices.Set(float64(n)) }
