package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"tinyex.com/pkg/logger"
	"tinyex.com/pkg/metrics"
	"tinyex.com/pkg/safe"
)

const maxFlush = 256 // payloads per websocket frame

type Server struct {
	Hub      *Hub
	Upgrader websocket.Upgrader
	ctx      context.Context

	PongWait   time.Duration
	PingPeriod time.Duration
	PingJitter time.Duration
	WriteWait  time.Duration
	ReadLimit  int64
}

// NewServer serves hub until ctx is done.
func NewServer(ctx context.Context, h *Hub) *Server {
	return &Server{
		Hub: h,
		ctx: ctx,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // read-only public feed
		},
		PongWait:   60 * time.Second,
		PingPeriod: 30 * time.Second,
		PingJitter: 3 * time.Second,
		WriteWait:  5 * time.Second,
		ReadLimit:  1 << 12,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn(r.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}
	c := newConn(uuid.NewString(), wsConn)
	metrics.WSConns.Inc()
	logger.Debug(r.Context(), "websocket connected", zap.String("conn", c.id), zap.String("remote", r.RemoteAddr))

	ctx := logger.WithReqID(s.ctx, c.id)
	safe.GoCtx(ctx, func(ctx context.Context) { s.writePump(ctx, c) })
	safe.GoCtx(ctx, func(ctx context.Context) { s.readPump(ctx, c) })
}

func (s *Server) readPump(ctx context.Context, c *Conn) {
	defer func() {
		c.closed.Store(true)
		close(c.done)
		s.Hub.RemoveConn(c)
		_ = c.ws.Close()
		metrics.WSConns.Dec()
		logger.Debug(ctx, "websocket closed")
	}()

	c.ws.SetReadLimit(s.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	})

	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug(ctx, "websocket read failed", zap.Error(err))
			}
			return
		}
		var msg ClientMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case MsgSub:
			s.Hub.Subscribe(c, msg.Topics)
		case MsgUnsub:
			s.Hub.Unsubscribe(c, msg.Topics)
		}
	}
}

// writePump writes pending payloads newline separated, one frame per batch,
// and pings the client.
func (s *Server) writePump(ctx context.Context, c *Conn) {
	defer c.ws.Close()
	// per-connection jitter spreads the pings
	period := s.PingPeriod
	if s.PingJitter > 0 {
		period += time.Duration(rand.Int63n(int64(s.PingJitter)))
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-c.notify:
			batch := c.take(maxFlush)
			if len(batch) == 0 {
				continue
			}
			if err := s.write(c, batch); err != nil {
				logger.Debug(ctx, "websocket write failed", zap.Error(err))
				return
			}
			metrics.WSMsgsOutTotal.Add(float64(len(batch)))
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.WriteWait)); err != nil {
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(s.WriteWait))
			return
		}
	}
}

func (s *Server) write(c *Conn, batch [][]byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(s.WriteWait))
	w, err := c.ws.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	for i, p := range batch {
		if i > 0 {
			if _, err := w.Write([]byte{'\n'}); err != nil {
				_ = w.Close()
				return err
			}
		}
		if _, err := w.Write(p); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}
