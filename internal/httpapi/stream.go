package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sorbo/backend/internal/domain"
)

const (
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 25 * time.Second
	streamWriteWait  = 10 * time.Second
)

func (a *API) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || a.allowedOrigin == "*" || origin == a.allowedOrigin
		},
	}
}

// handleStockStream pushes the current stock summary, then every stock event
// until the client goes away.
func (a *API) handleStockStream(c *gin.Context) {
	actor, err := a.authenticate(c, true)
	if err != nil {
		writeError(c, http.StatusUnauthorized, err)
		return
	}
	summary, err := a.service.StockSummary(c.Request.Context())
	if err != nil {
		a.writeServiceError(c, err)
		return
	}

	upgrader := a.upgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.Warn("stock stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := a.logger.With(zap.String("handler", "stock_stream"), zap.String("actor", actor.Username))
	events, cancel := a.hub.Subscribe()
	defer cancel()

	// The reader only exists to notice the client closing and to handle pongs.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(event domain.StockEvent) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(event); err != nil {
			logger.Debug("stock stream write failed", zap.Error(err))
			return false
		}
		return true
	}

	if !write(domain.StockEvent{Type: domain.EventSnapshot, Summary: summary, At: time.Now().UTC()}) {
		return
	}

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok || !write(event) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
