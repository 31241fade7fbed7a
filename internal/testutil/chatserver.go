// Package testutil provides a fake chat server for channel and console tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xiaot623/livedesk/internal/protocol"
)

// Command is an outbound console command as received by the fake server.
type Command struct {
	Type string
	Raw  json.RawMessage
}

// Decode unmarshals the raw frame into v.
func (c Command) Decode(v interface{}) error {
	return json.Unmarshal(c.Raw, v)
}

// Connection is one console connection accepted by the server.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	mu   sync.Mutex
}

// WriteMessage writes a frame with the connection's write lock held.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.Conn.WriteMessage(messageType, data)
}

// ChatServer accepts console connections, answers identify with a presence
// snapshot and records every command it receives.
type ChatServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu         sync.Mutex
	conns      map[string]*Connection
	identifies []protocol.Identify
	commands   []Command
	active     []string
	refuse     bool
	accepted   int
	credential string
}

// NewChatServer starts a fake chat server. Close it with Close.
func NewChatServer() *ChatServer {
	s := &ChatServer{
		conns:  make(map[string]*Connection),
		active: []string{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the ws:// address of the server.
func (s *ChatServer) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

// Close drops every connection and stops the server.
func (s *ChatServer) Close() {
	s.DropAll()
	s.server.Close()
}

// SetActiveSessions sets the ids returned in the snapshot after identify.
func (s *ChatServer) SetActiveSessions(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = append([]string{}, ids...)
}

// RequireCredential makes identify fail with a channel.error and a close
// unless the credential matches.
func (s *ChatServer) RequireCredential(credential string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = credential
}

// Refuse makes the server reject upgrades with 503 until called with false.
func (s *ChatServer) Refuse(refuse bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuse = refuse
}

// Accepted returns the number of upgrades accepted so far.
func (s *ChatServer) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// ConnectionCount returns the number of open connections.
func (s *ChatServer) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Identifies returns the identify frames received so far.
func (s *ChatServer) Identifies() []protocol.Identify {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Identify{}, s.identifies...)
}

// Commands returns the non-identify commands received so far.
func (s *ChatServer) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command{}, s.commands...)
}

// Push sends v as a JSON frame to every open connection.
func (s *ChatServer) Push(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.PushRaw(data)
}

// PushRaw sends a raw text frame to every open connection.
func (s *ChatServer) PushRaw(data []byte) error {
	for _, conn := range s.snapshot() {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
	}
	return nil
}

// DropAll closes every connection without a close handshake.
func (s *ChatServer) DropAll() {
	for _, conn := range s.snapshot() {
		conn.Conn.Close()
	}
}

func (s *ChatServer) snapshot() []*Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	return conns
}

func (s *ChatServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	refuse := s.refuse
	s.mu.Unlock()
	if refuse {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn := &Connection{ID: uuid.New().String(), Conn: ws}
	s.mu.Lock()
	s.conns[conn.ID] = conn
	s.accepted++
	s.mu.Unlock()

	go s.readLoop(conn)
}

func (s *ChatServer) readLoop(conn *Connection) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn.ID)
		s.mu.Unlock()
		conn.Conn.Close()
	}()

	for {
		_, data, err := conn.Conn.ReadMessage()
		if err != nil {
			return
		}

		var base protocol.BaseMessage
		if err := json.Unmarshal(data, &base); err != nil {
			continue
		}

		if base.Type == protocol.TypeIdentify {
			if !s.handleIdentify(conn, data) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.commands = append(s.commands, Command{Type: base.Type, Raw: append(json.RawMessage{}, data...)})
		s.mu.Unlock()
	}
}

func (s *ChatServer) handleIdentify(conn *Connection, data []byte) bool {
	var msg protocol.Identify
	if err := json.Unmarshal(data, &msg); err != nil {
		return false
	}

	s.mu.Lock()
	s.identifies = append(s.identifies, msg)
	credential := s.credential
	active := append([]string{}, s.active...)
	s.mu.Unlock()

	if credential != "" && msg.Credential != credential {
		reply, _ := json.Marshal(protocol.ErrorMessage{
			BaseMessage: protocol.BaseMessage{Type: protocol.TypeChannelError, Ts: time.Now().UnixMilli()},
			Message:     "invalid credential",
		})
		conn.WriteMessage(websocket.TextMessage, reply)
		return false
	}

	snapshot, _ := json.Marshal(protocol.PresenceSnapshotMessage{
		BaseMessage:      protocol.BaseMessage{Type: protocol.TypePresenceSnapshot, Ts: time.Now().UnixMilli()},
		ActiveSessionIDs: active,
	})
	return conn.WriteMessage(websocket.TextMessage, snapshot) == nil
}
