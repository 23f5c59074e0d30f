package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"campuseats/internal/distributor"
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// statusFeed pushes distributor events over one WebSocket connection.
type statusFeed struct {
	conn *websocket.Conn
	send chan []byte
	sub  *distributor.Subscription
	log  zerolog.Logger
}

// CanteenFeed streams a canteen's committed transitions to a kitchen
// display. Polling remains the consistency backstop if the socket drops.
func (s *Server) CanteenFeed(c *gin.Context) {
	s.serveFeed(c, s.dist.SubscribeCanteen(c.Param("canteenId")))
}

// OrderFeed streams one order's committed transitions to its customer.
func (s *Server) OrderFeed(c *gin.Context) {
	s.serveFeed(c, s.dist.SubscribeOrder(c.Param("id")))
}

func (s *Server) serveFeed(c *gin.Context, sub *distributor.Subscription) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Cancel()
		s.log.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	feed := &statusFeed{
		conn: conn,
		send: make(chan []byte, 256),
		sub:  sub,
		log:  s.log,
	}

	go feed.writePump()
	go feed.forward()
	go feed.readPump()
}

// forward marshals subscription events into the send channel. It exits
// when the subscription is cancelled.
func (f *statusFeed) forward() {
	defer close(f.send)

	for event := range f.sub.C {
		data, err := json.Marshal(event)
		if err != nil {
			f.log.Error().Err(err).Msg("failed to marshal event")
			continue
		}
		select {
		case f.send <- data:
		default:
			f.log.Warn().Msg("feed buffer full, dropping event")
		}
	}
}

// readPump drains client messages until the connection closes, then
// detaches the subscriber.
func (f *statusFeed) readPump() {
	defer func() {
		f.sub.Cancel()
		f.conn.Close()
	}()

	f.conn.SetReadLimit(512)
	f.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	f.conn.SetPongHandler(func(string) error {
		f.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := f.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				f.log.Warn().Err(err).Msg("websocket error")
			}
			break
		}
	}
}

// writePump pumps events to the client and keeps the connection alive
// with pings.
func (f *statusFeed) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		f.conn.Close()
	}()

	for {
		select {
		case message, ok := <-f.send:
			f.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				f.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := f.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			f.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := f.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
