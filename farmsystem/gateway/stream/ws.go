// Package stream exposes auction events over WebSocket. Every client
// receives the global stream on connect and can join or leave narrower
// auction and team topics with control messages.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pomfarm/farmsystem/farmsystem/economy/auction"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	maxMsgSize   = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientMessage is the control protocol clients speak: subscribe to and
// leave auction or team streams.
type ClientMessage struct {
	Action    string `json:"action"`
	AuctionID int64  `json:"auction_id,omitempty"`
	TeamID    int64  `json:"team_id,omitempty"`
}

const (
	actionJoinAuction  = "join_auction"
	actionLeaveAuction = "leave_auction"
	actionJoinTeam     = "join_team"
	actionLeaveTeam    = "leave_team"
)

type Gateway struct {
	notifier *auction.Notifier
}

func NewGateway(notifier *auction.Notifier) *Gateway {
	return &Gateway{notifier: notifier}
}

func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/auctions", g.handleStream)
	return mux
}

func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection",
			slog.String("type", "ws"),
			slog.String("error", err.Error()))
		return
	}

	client := newClient(conn, g.notifier)
	defer client.close()

	slog.Info("Stream client connected",
		slog.String("type", "ws"),
		slog.String("remote", conn.RemoteAddr().String()))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go client.writeLoop(ctx)
	client.readLoop(cancel)
}

// client multiplexes one connection's topic subscriptions onto a single
// outbound channel. The write loop is the only goroutine that touches
// the connection for writes.
type client struct {
	conn     *websocket.Conn
	notifier *auction.Notifier
	out      chan auction.Event

	mu      sync.Mutex
	cancels map[string]func()
}

func newClient(conn *websocket.Conn, notifier *auction.Notifier) *client {
	c := &client{
		conn:     conn,
		notifier: notifier,
		out:      make(chan auction.Event, 32),
		cancels:  make(map[string]func()),
	}
	c.join(auction.TopicGlobal)
	return c
}

func (c *client) join(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.cancels[topic]; ok {
		return
	}
	events, cancel := c.notifier.Subscribe(topic)
	c.cancels[topic] = cancel

	go func() {
		for event := range events {
			select {
			case c.out <- event:
			default:
			}
		}
	}()
}

func (c *client) leave(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cancel, ok := c.cancels[topic]; ok {
		delete(c.cancels, topic)
		cancel()
	}
}

func (c *client) close() {
	c.mu.Lock()
	cancels := c.cancels
	c.cancels = map[string]func(){}
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	c.conn.Close()
}

func (c *client) readLoop(cancel context.CancelFunc) {
	defer cancel()
	c.conn.SetReadLimit(maxMsgSize)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Stream client read error",
					slog.String("type", "ws"),
					slog.String("error", err.Error()))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Ignoring malformed stream message",
				slog.String("type", "ws"),
				slog.String("error", err.Error()))
			continue
		}

		switch msg.Action {
		case actionJoinAuction:
			c.join(auction.AuctionTopic(msg.AuctionID))
		case actionLeaveAuction:
			c.leave(auction.AuctionTopic(msg.AuctionID))
		case actionJoinTeam:
			c.join(auction.TeamTopic(msg.TeamID))
		case actionLeaveTeam:
			c.leave(auction.TeamTopic(msg.TeamID))
		default:
			slog.Warn("Ignoring unknown stream action",
				slog.String("type", "ws"),
				slog.String("action", msg.Action))
		}
	}
}

func (c *client) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(event); err != nil {
				slog.Warn("Stream client write error",
					slog.String("type", "ws"),
					slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Serve runs the gateway on addr until ctx is cancelled.
func (g *Gateway) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	slog.Info("Stream gateway listening",
		slog.String("type", "ws"),
		slog.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
