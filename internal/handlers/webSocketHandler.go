package handlers

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/404minds/gt06-receiver/internal/types"
)

const (
	feedWriteTimeout = 5 * time.Second
	feedQueueSize    = 256
)

type feedMessage struct {
	Type      string           `json:"type"`
	Position  *types.Position  `json:"position,omitempty"`
	Positions []types.Position `json:"positions,omitempty"`
}

// feedClient owns one websocket. Only its writePump writes to conn.
type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

// LiveFeed pushes every stored position to the connected WebSocket clients. A new client first
// receives a snapshot with the latest position of every device seen so far.
type LiveFeed struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*feedClient]struct{}
	latest  map[string]types.Position
}

func NewLiveFeed() *LiveFeed {
	return &LiveFeed{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*feedClient]struct{}),
		latest:  make(map[string]types.Position),
	}
}

func (f *LiveFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &feedClient{conn: conn, send: make(chan []byte, feedQueueSize)}

	f.mu.Lock()
	snapshot := make([]types.Position, 0, len(f.latest))
	for _, position := range f.latest {
		snapshot = append(snapshot, position)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].DeviceID < snapshot[j].DeviceID })
	data, err := json.Marshal(feedMessage{Type: "snapshot", Positions: snapshot})
	if err == nil {
		client.send <- data
		f.clients[client] = struct{}{}
	}
	f.mu.Unlock()

	if err != nil {
		logger.Error("failed to encode feed snapshot", zap.Error(err))
		conn.Close()
		return
	}
	logger.Sugar().Infof("Live feed client connected from %s", r.RemoteAddr)
	go f.writePump(client)
	go f.readPump(client)
}

// Broadcast records position as the latest of its device and queues it for every client. It never
// waits on a socket; clients whose queue is full are dropped.
func (f *LiveFeed) Broadcast(position types.Position) {
	data, err := json.Marshal(feedMessage{Type: "position", Position: &position})
	if err != nil {
		logger.Error("failed to encode feed position", zap.String("deviceId", position.DeviceID), zap.Error(err))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if position.DeviceID != "" {
		f.latest[position.DeviceID] = position
	}
	for client := range f.clients {
		select {
		case client.send <- data:
		default:
			logger.Warn("dropping slow live feed client")
			f.removeLocked(client)
		}
	}
}

func (f *LiveFeed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// removeLocked unregisters client and closes its queue, which ends its writePump. f.mu must be held.
func (f *LiveFeed) removeLocked(client *feedClient) {
	if _, ok := f.clients[client]; !ok {
		return
	}
	delete(f.clients, client)
	close(client.send)
}

func (f *LiveFeed) remove(client *feedClient) {
	f.mu.Lock()
	f.removeLocked(client)
	f.mu.Unlock()
}

func (f *LiveFeed) writePump(client *feedClient) {
	defer client.conn.Close()
	for data := range client.send {
		_ = client.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			f.remove(client)
			return
		}
	}
}

func (f *LiveFeed) readPump(client *feedClient) {
	defer func() {
		f.remove(client)
		_ = client.conn.Close()
	}()
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
