// Package chattest runs an in-process streaming chat backend for tests.
package chattest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/omochice/chatstream/pkg/protocol"
)

// DefaultGreeting is sent as plain text to every client on connect.
const DefaultGreeting = "Connected to chat server"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Reply produces the frames streamed back for one inbound message.
type Reply func(message string) []string

// EchoReply streams "Echo: <message>" as two chunks and a done frame.
func EchoReply(message string) []string {
	return []string{
		chunkFrame("Echo: "),
		chunkFrame(message),
		`{"type":"done"}`,
	}
}

type chunk struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func chunkFrame(content string) string {
	frame, err := protocol.Encode(chunk{Type: "chunk", Content: content})
	if err != nil {
		panic(err)
	}
	return frame
}

type client struct {
	conn     *websocket.Conn
	outgoing chan string
}

// Server is a websocket chat backend listening on a loopback port.
type Server struct {
	// URL is the ws:// address clients dial.
	URL string

	greeting string
	reply    Reply
	http     *httptest.Server

	mu       sync.RWMutex
	clients  map[*client]bool
	received []string
	wg       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithGreeting replaces the greeting. An empty greeting sends nothing.
func WithGreeting(greeting string) Option {
	return func(s *Server) {
		s.greeting = greeting
	}
}

// WithReply replaces the reply function.
func WithReply(reply Reply) Option {
	return func(s *Server) {
		s.reply = reply
	}
}

// NewServer starts a Server.
func NewServer(opts ...Option) *Server {
	s := &Server{
		greeting: DefaultGreeting,
		reply:    EchoReply,
		clients:  make(map[*client]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.http = httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	s.URL = "ws" + strings.TrimPrefix(s.http.URL, "http")
	return s
}

// Close drops every client and stops the server.
func (s *Server) Close() {
	s.DropClients()
	s.http.Close()
	s.wg.Wait()
}

// DropClients closes every client connection without a close handshake.
func (s *Server) DropClients() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		c.conn.Close()
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Received returns the messages received so far, in order.
func (s *Server) Received() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.received...)
}

// Broadcast queues frame for every connected client.
func (s *Server) Broadcast(frame string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for c := range s.clients {
		select {
		case c.outgoing <- frame:
		default:
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{
		conn:     conn,
		outgoing: make(chan string, 64),
	}
	if s.greeting != "" {
		c.outgoing <- s.greeting
	}

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.handleClient(c)
}

func (s *Server) handleClient(c *client) {
	defer s.wg.Done()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for frame := range c.outgoing {
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
	}()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		close(c.outgoing)
		<-writerDone
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		message := string(data)
		s.mu.Lock()
		s.received = append(s.received, message)
		s.mu.Unlock()

		for _, frame := range s.reply(message) {
			select {
			case c.outgoing <- frame:
			default:
			}
		}
	}
}
