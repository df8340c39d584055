package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"waaku-golang/internal/middleware"
	"waaku-golang/pkg/logger"
)

// Message é o envelope empurrado para cada observador conectado.
type Message struct {
	Event     string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotFunc monta os eventos iniciais enviados a um observador recém
// conectado (sessions:update + health:update), para que ele nunca precise de
// um pull inicial.
type SnapshotFunc func() []Message

type client struct {
	conn *websocket.Conn
	send chan []byte

	// mu serializa trySend e close: um broadcast concorrente nunca pode
	// escrever em um canal que a remoção acabou de fechar.
	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// trySend entrega sem bloquear. Devolve false quando o observador está
// fechado ou sem espaço no buffer.
func (c *client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// Hub mantém os observadores do canal realtime e faz o fan-out de eventos.
// Entrega é melhor esforço: um observador lento é derrubado sem afetar os
// demais nem a mutação que disparou o evento.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	snapshot SnapshotFunc
	keyHash  string
	origins  []string
	logger   *logger.Logger
}

func NewHub(keyHash string, origins []string, log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		keyHash: keyHash,
		origins: origins,
		logger:  log,
	}
}

// SetSnapshot define a fonte do snapshot inicial. Deve ser chamado no boot,
// antes de aceitar conexões.
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.snapshot = fn
}

// Emit implementa session.Notifier.
func (h *Hub) Emit(event string, payload any) {
	h.broadcast(Message{Event: event, Data: payload, Timestamp: time.Now()})
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS autentica e promove a conexão para WebSocket. Aceita a chave no
// header X-API-Key ou no query param api_key (browsers não enviam headers
// custom no handshake de WebSocket).
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = r.URL.Query().Get("api_key")
	}
	if err := middleware.CheckAPIKey(key, h.keyHash); err != nil {
		h.logger.Warnf("Conexão realtime não autorizada de %s: %s", r.RemoteAddr, err.Code)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Code})
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: h.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("Falha no upgrade WebSocket: %v", err)
		return
	}

	c := newClient(conn)
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	h.logger.Infof("Observador realtime conectado: %s", r.RemoteAddr)

	h.sendTo(c, Message{
		Event:     "connected",
		Data:      map[string]any{"ok": true, "ts": time.Now().UnixMilli()},
		Timestamp: time.Now(),
	})
	if h.snapshot != nil {
		for _, msg := range h.snapshot() {
			h.sendTo(c, msg)
		}
	}

	go func() {
		defer func() {
			h.remove(c)
			h.logger.Infof("Observador realtime desconectado: %s", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.origins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

func (h *Hub) sendTo(c *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorf("Falha ao serializar evento %s: %v", msg.Event, err)
		return
	}
	// Observador sem espaço no buffer perde o evento, nunca bloqueia.
	c.trySend(data)
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorf("Falha ao serializar evento %s: %v", msg.Event, err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.trySend(data) {
			h.logger.Warnf("Observador realtime lento, desconectando")
			h.remove(c)
		}
	}
}
