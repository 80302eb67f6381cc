// Package session wires the connection manager, the stream reassembler and
// the transcript into the surface a front end drives.
package session

import (
	"strings"
	"sync"

	"github.com/omochice/chatstream/internal/chat"
	"github.com/omochice/chatstream/internal/client"
	"github.com/omochice/chatstream/internal/metrics"
	"github.com/omochice/chatstream/internal/stream"
	"github.com/omochice/chatstream/internal/transport"
	"github.com/omochice/chatstream/internal/transport/ws"
	"github.com/omochice/chatstream/pkg/protocol"
	"go.uber.org/zap"
)

// UpdateKind identifies what an Update reports.
type UpdateKind int

const (
	// UpdateTurnAdded reports a new user or assistant turn.
	UpdateTurnAdded UpdateKind = iota
	// UpdateTurnAppended reports text appended to the streaming turn.
	UpdateTurnAppended
	// UpdateStreamEnded reports that the streaming turn was finalized.
	UpdateStreamEnded
	// UpdateStatus reports a connection state or error change.
	UpdateStatus
)

// String returns the string representation of UpdateKind
func (k UpdateKind) String() string {
	switch k {
	case UpdateTurnAdded:
		return "turn_added"
	case UpdateTurnAppended:
		return "turn_appended"
	case UpdateStreamEnded:
		return "stream_ended"
	case UpdateStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Update is delivered to observers after every visible change.
type Update struct {
	Kind UpdateKind
	// Turn is the affected turn for turn updates. For UpdateStreamEnded it
	// carries only the id and role of the finalized turn.
	Turn chat.Turn
	// Chunk is the appended text for UpdateTurnAdded and UpdateTurnAppended
	// on assistant turns.
	Chunk string
	// Status is set for UpdateStatus.
	Status client.Snapshot
}

// Options configures a Session.
type Options struct {
	// Address is the websocket endpoint dialed by Start.
	Address string
	// Dialer opens transports. Defaults to the gorilla/websocket dialer.
	Dialer  transport.Dialer
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Option adds optional behavior to a Session.
type Option func(*Session)

// WithObserver registers fn to receive every Update. Observers may call
// Turns, Snapshot, Status, LastError, IsConnected and Address, nothing else.
func WithObserver(fn func(Update)) Option {
	return func(s *Session) {
		s.observers = append(s.observers, fn)
	}
}

// Session is one chat against one backend. All methods are safe for
// concurrent use.
type Session struct {
	address    string
	manager    client.Client
	transcript *chat.Transcript
	logger     *zap.Logger
	metrics    *metrics.Metrics

	// mu serializes frame handling, submissions and stream boundaries.
	mu          sync.Mutex
	reassembler *stream.Reassembler

	emitMu    sync.Mutex
	observers []func(Update)
}

// New creates a Session. It does not connect until Start is called.
func New(opts Options, options ...Option) *Session {
	s := &Session{
		address:    opts.Address,
		transcript: chat.NewTranscript(),
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = metrics.Discard()
	}
	for _, opt := range options {
		opt(s)
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = ws.NewDialer(0)
	}

	s.reassembler = stream.New(s.transcript)
	s.manager = client.NewManager(dialer, s.handleFrame,
		client.WithLogger(s.logger),
		client.WithMetrics(s.metrics),
		client.WithStatusHandler(s.handleStatus),
		client.WithDetachHandler(s.endStream),
	)
	return s
}

// Start connects to the configured address.
func (s *Session) Start() {
	s.manager.Connect(s.address)
}

// Submit sends the trimmed text as one frame and records it as a user turn.
// Whitespace-only input is ignored. Any streaming assistant turn is
// finalized first. When the send fails no turn is added and the error is
// returned.
func (s *Session) Submit(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.endStreamLocked()

	if err := s.manager.Send(text); err != nil {
		s.logger.Warn("submit failed", zap.Error(err))
		return err
	}

	turn := s.transcript.Add(chat.RoleUser, text)
	s.metrics.Turns.WithLabelValues(chat.RoleUser.String()).Inc()
	s.emit(Update{Kind: UpdateTurnAdded, Turn: turn})
	return nil
}

// Reconnect reconnects to address, or to the active address when address
// equals it. An empty address is ignored. Any streaming turn is finalized
// before the new transport can deliver a frame.
func (s *Session) Reconnect(address string) {
	address = strings.TrimSpace(address)
	if address == "" {
		return
	}

	s.endStream()
	if address != s.manager.Address() {
		s.manager.SetAddress(address)
	} else {
		s.manager.Reconnect()
	}
}

// Close finalizes any streaming turn, tears the connection down and waits for
// background work to stop.
func (s *Session) Close() {
	s.endStream()
	s.manager.Shutdown()
}

// Turns returns a copy of the transcript in order.
func (s *Session) Turns() []chat.Turn {
	return s.transcript.Turns()
}

// Streaming reports whether an assistant turn is receiving chunks.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reassembler.Streaming()
}

// Status returns the connection badge.
func (s *Session) Status() client.Status {
	return s.manager.Snapshot().Status()
}

// Snapshot returns the connection state.
func (s *Session) Snapshot() client.Snapshot {
	return s.manager.Snapshot()
}

// LastError returns the last connection error, or "" if none.
func (s *Session) LastError() string {
	return s.manager.LastError()
}

// IsConnected reports whether the transport is open.
func (s *Session) IsConnected() bool {
	return s.manager.IsConnected()
}

// Address returns the active address, or the configured one before Start.
func (s *Session) Address() string {
	if addr := s.manager.Address(); addr != "" {
		return addr
	}
	return s.address
}

func (s *Session) handleFrame(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range s.reassembler.Feed(raw) {
		s.publish(ev)
	}
}

func (s *Session) handleStatus(snap client.Snapshot) {
	s.emit(Update{Kind: UpdateStatus, Status: snap})
}

func (s *Session) endStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endStreamLocked()
}

// endStreamLocked must be called with mu held.
func (s *Session) endStreamLocked() {
	if !s.reassembler.Streaming() {
		return
	}
	for _, ev := range s.reassembler.Apply(protocol.Frame{Done: true}) {
		s.publish(ev)
	}
}

func (s *Session) publish(ev stream.Event) {
	s.metrics.StreamEvents.WithLabelValues(ev.Kind.String()).Inc()

	switch ev.Kind {
	case stream.EventStart:
		s.metrics.Turns.WithLabelValues(chat.RoleAssistant.String()).Inc()
		s.emit(Update{Kind: UpdateTurnAdded, Turn: ev.Turn, Chunk: ev.Chunk})
	case stream.EventAppend:
		s.emit(Update{Kind: UpdateTurnAppended, Turn: ev.Turn, Chunk: ev.Chunk})
	case stream.EventEnd:
		if ev.Turn.ID == "" {
			return
		}
		s.logger.Debug("assistant turn finalized", zap.String("turn_id", ev.Turn.ID))
		s.emit(Update{Kind: UpdateStreamEnded, Turn: ev.Turn})
	}
}

func (s *Session) emit(u Update) {
	if len(s.observers) == 0 {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	for _, fn := range s.observers {
		fn(u)
	}
}
