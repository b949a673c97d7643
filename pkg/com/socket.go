package com

import (
	"github.com/oceanpulse/livelink/pkg/api"
	"github.com/oceanpulse/livelink/pkg/logger"
	"github.com/oceanpulse/livelink/pkg/network/websocket"
)

// Socket is one typed client connection over a websocket.
type Socket struct {
	id   Uid
	conn *websocket.WS
	log  *logger.Logger
}

func NewSocket(conn *websocket.WS, id Uid, log *logger.Logger) *Socket {
	if id.IsNil() {
		id = NewUid()
	}
	clLog := log.Extend(log.With().Str("cid", id.Short()))
	clLog.Debug().Str(logger.DirectionField, "+").Msg("Connect")
	return &Socket{conn: conn, id: id, log: clLog}
}

// OnPacket registers the inbound frame handler. Frames failing the
// first-pass decode are logged and dropped, the connection stays open.
func (s *Socket) OnPacket(fn func(in api.In) error) {
	s.conn.OnMessage = func(message []byte, err error) {
		if err != nil {
			s.log.Error().Err(err).Send()
			return
		}
		in, err := api.Decode(message)
		if err != nil {
			s.log.Warn().Err(err).Str(logger.DirectionField, "←").Msg("malformed frame dropped")
			return
		}
		s.log.Debug().Str(logger.DirectionField, "←").Msgf("%v", in.T)
		if err := fn(in); err != nil {
			s.log.Error().Err(err).Msgf("%v", in.T)
		}
	}
}

func (s *Socket) OnPong(fn func()) { s.conn.OnPong = fn }

// Notify sends a message and goes further.
func (s *Socket) Notify(kind api.Kind, v any) {
	s.log.Debug().Str(logger.DirectionField, "→").Msgf("%v", kind)
	data, err := api.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msgf("%v", kind)
		return
	}
	s.conn.Write(data)
}

func (s *Socket) Disconnect() {
	s.conn.Close()
	s.log.Debug().Str(logger.DirectionField, "x").Msg("Close")
}

// Drain delivers whatever is queued and then closes gracefully.
func (s *Socket) Drain() {
	s.conn.Drain()
	s.log.Debug().Str(logger.DirectionField, "x").Msg("Drain")
}

func (s *Socket) Id() Uid { return s.id }

// Listen starts reading frames and returns the done channel.
func (s *Socket) Listen() chan struct{} {
	s.conn.Listen()
	return s.conn.Done
}

func (s *Socket) String() string { return s.id.String() }
