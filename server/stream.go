package server

import (
	"sync/atomic"
	"time"

	"github.com/eak1mov/go-tilestream/event"
	"github.com/eak1mov/go-tilestream/tile"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

const (
	streamBuffer = 256
	writeWait    = 10 * time.Second
)

// streamer serves a websocket where clients push positions and receive
// lifecycle events. Events are published under the manager lock, so they
// are handed over through a buffered channel and dropped when a client
// cannot keep up.
type streamer struct {
	handler  *handler
	events   *event.Bus
	upgrader websocket.Upgrader
}

type streamEvent struct {
	Type   string     `json:"type"`
	Kind   string     `json:"kind"`
	Index  tile.Index `json:"index"`
	Center orb.Point  `json:"center"`
	Time   time.Time  `json:"time"`
}

type streamPosition struct {
	Type string `json:"type"`
	positionResponse
}

type streamError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (s *streamer) stream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.handler.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	// The server read timeout applies to requests, not to the stream.
	conn.SetReadDeadline(time.Time{})

	out := make(chan any, streamBuffer)
	var dropped atomic.Int64
	unsubscribe := s.events.Subscribe(event.SinkFunc(func(e event.Event) {
		msg := streamEvent{Type: "event", Kind: e.Kind.String(), Index: e.Index, Center: e.Center, Time: e.Time}
		select {
		case out <- msg:
		default:
			dropped.Add(1)
		}
	}))
	defer unsubscribe()
	s.handler.logger.Info("stream opened",
		zap.String("remote", c.ClientIP()),
		zap.Int("subscribers", s.events.Len()),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range out {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				s.handler.logger.Debug("websocket write failed", zap.Error(err))
				conn.Close()
				return
			}
		}
	}()

	ctx := c.Request.Context()
	for {
		var req positionRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.handler.logger.Debug("websocket read failed", zap.Error(err))
			}
			break
		}

		var reply any
		resp, _, err := s.handler.apply(ctx, req)
		if err != nil {
			reply = streamError{Type: "error", Error: err.Error()}
		} else {
			reply = streamPosition{Type: "position", positionResponse: resp}
		}
		// Replies are queued after the events the update published.
		select {
		case out <- reply:
		case <-done:
		}
	}

	unsubscribe()
	close(out)
	<-done
	s.handler.logger.Info("stream closed",
		zap.Int64("dropped", dropped.Load()),
		zap.Int("subscribers", s.events.Len()),
	)
	if n := dropped.Load(); n > 0 {
		s.handler.logger.Warn("stream events dropped", zap.Int64("count", n))
	}
}
