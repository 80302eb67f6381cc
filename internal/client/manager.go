package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/omochice/chatstream/internal/metrics"
	"github.com/omochice/chatstream/internal/transport"
	"github.com/omochice/chatstream/pkg/protocol"
	"go.uber.org/zap"
)

// ErrNotOpen is returned by Send while the transport is still connecting.
// Its text is also recorded as the last error whenever a send finds the
// transport not open.
var ErrNotOpen = errors.New("websocket is not connected")

// transportError is recorded when the transport reports an abnormal failure.
const transportError = "websocket error"

// subscription is the set of handlers attached to one transport.
// Once it is no longer m.sub, nothing it produces reaches the Manager's handlers.
type subscription struct {
	id      string
	address string
	ctx     context.Context
	cancel  context.CancelFunc
	conn    transport.Conn
}

// Manager owns at most one live transport and reconnects it on demand.
// All methods are safe for concurrent use. Frames are delivered to the
// message handler one at a time, in arrival order.
type Manager struct {
	dialer    transport.Dialer
	onMessage func(frame string)
	onStatus  func(Snapshot)
	onDetach  func()
	logger    *zap.Logger
	metrics   *metrics.Metrics

	// opMu serializes lifecycle operations so close-before-open is atomic.
	opMu sync.Mutex

	mu        sync.Mutex
	address   string
	sub       *subscription
	state     State
	lastError string

	dispatchMu sync.Mutex
	wg         sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics sets the collectors updated by the Manager.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithStatusHandler registers a callback invoked after every state or error change.
func WithStatusHandler(fn func(Snapshot)) Option {
	return func(m *Manager) {
		m.onStatus = fn
	}
}

// WithDetachHandler registers a callback invoked each time a transport is
// discarded, after its last frame was delivered and before any replacement
// is dialed. It must not call lifecycle methods.
func WithDetachHandler(fn func()) Option {
	return func(m *Manager) {
		m.onDetach = fn
	}
}

// NewManager creates a Manager that dials with dialer and hands every inbound
// frame to onMessage. The handler must not call lifecycle methods.
func NewManager(dialer transport.Dialer, onMessage func(frame string), opts ...Option) *Manager {
	m := &Manager{
		dialer:    dialer,
		onMessage: onMessage,
		logger:    zap.NewNop(),
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = metrics.Discard()
	}
	return m
}

// Connect starts connecting to address. It is a no-op while a transport for
// the same address is connecting or open. Any other transport is torn down first.
func (m *Manager) Connect(address string) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.connect(address)
}

// SetAddress switches to a new address, closing the current transport before
// opening the next one. Setting the current address again does nothing.
func (m *Manager) SetAddress(address string) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if address == m.Address() {
		return
	}
	m.close(false)
	m.connect(address)
}

// Reconnect closes the current transport and connects to the configured address again.
func (m *Manager) Reconnect() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.close(false)
	m.connect(m.Address())
}

// Close tears down the current transport. It returns immediately if there is
// none or it is already closing or closed.
func (m *Manager) Close() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.close(false)
}

// Shutdown closes the transport and waits for its goroutines to exit.
func (m *Manager) Shutdown() {
	m.opMu.Lock()
	m.close(true)
	m.opMu.Unlock()

	m.wg.Wait()
}

// Send transmits payload, serialized with protocol.Encode. Without a
// transport it does nothing. If the transport is not open the failure is
// recorded and the write is attempted anyway. Only a send while the dial is
// still pending returns ErrNotOpen.
func (m *Manager) Send(payload any) error {
	frame, err := protocol.Encode(payload)
	if err != nil {
		return err
	}

	m.mu.Lock()
	sub := m.sub
	if sub == nil {
		m.mu.Unlock()
		return nil
	}
	notOpen := m.state != StateOpen
	if notOpen {
		m.lastError = ErrNotOpen.Error()
	}
	connecting := m.state == StateConnecting
	conn := sub.conn
	m.mu.Unlock()

	if notOpen {
		m.notify()
	}
	if conn == nil {
		m.metrics.RecordSend(ErrNotOpen)
		// A failed dial leaves nothing to write to, like having no transport.
		if connecting {
			return ErrNotOpen
		}
		return nil
	}

	err = conn.Write(sub.ctx, frame)
	m.metrics.RecordSend(err)
	if err != nil {
		m.logger.Warn("send failed",
			zap.String("transport_id", sub.id),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Snapshot returns the current observable state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// IsConnected reports whether the transport is open.
func (m *Manager) IsConnected() bool {
	return m.Snapshot().Connected()
}

// LastError returns the last recorded error, or "" if none.
func (m *Manager) LastError() string {
	return m.Snapshot().LastError
}

// Address returns the configured address.
func (m *Manager) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.address
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		Address:   m.address,
		State:     m.state,
		LastError: m.lastError,
	}
}

// connect must be called with opMu held.
func (m *Manager) connect(address string) {
	m.mu.Lock()
	if m.sub != nil && m.sub.address == address &&
		(m.state == StateConnecting || m.state == StateOpen) {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	// Drop leftovers of a transport that already closed on its own.
	m.close(true)

	m.mu.Lock()
	m.address = address
	m.lastError = ""

	if _, err := transport.ParseAddress(address); err != nil {
		m.state = StateErrored
		m.lastError = fmt.Sprintf("failed to connect: %v", err)
		m.mu.Unlock()

		m.metrics.DialErrors.Inc()
		m.logger.Warn("invalid address", zap.String("address", address), zap.Error(err))
		m.notify()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		id:      uuid.NewString(),
		address: address,
		ctx:     ctx,
		cancel:  cancel,
	}
	m.sub = sub
	m.state = StateConnecting
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Debug("connecting",
		zap.String("transport_id", sub.id),
		zap.String("address", address))
	m.notify()

	go m.run(sub)
}

// close must be called with opMu held. With force it also discards a
// transport that is already closed.
func (m *Manager) close(force bool) {
	m.mu.Lock()
	sub := m.sub
	if sub == nil || (!force && (m.state == StateClosing || m.state == StateClosed)) {
		m.mu.Unlock()
		return
	}
	wasClosed := m.state == StateClosed
	m.sub = nil
	m.state = StateClosing
	conn := sub.conn
	m.mu.Unlock()

	// Wait out a delivery that passed the currency check before the swap.
	m.dispatchMu.Lock()
	m.dispatchMu.Unlock()

	if m.onDetach != nil {
		m.onDetach()
	}

	sub.cancel()
	if conn != nil {
		if err := conn.Close(); err != nil {
			m.logger.Debug("close transport", zap.String("transport_id", sub.id), zap.Error(err))
		}
	}

	m.mu.Lock()
	m.state = StateClosed
	if !wasClosed {
		m.lastError = ""
	}
	m.mu.Unlock()

	m.metrics.SetConnected(false)
	m.logger.Debug("transport closed", zap.String("transport_id", sub.id))
	m.notify()
}

func (m *Manager) run(sub *subscription) {
	defer m.wg.Done()

	m.metrics.Dials.Inc()
	conn, err := m.dialer.Dial(sub.ctx, sub.address)
	if !m.opened(sub, conn, err) {
		return
	}

	for {
		frame, err := conn.Read(sub.ctx)
		if err != nil {
			m.readFailed(sub, conn, err)
			return
		}
		m.deliver(sub, frame)
	}
}

// opened records the dial result. It reports whether the read loop should start.
func (m *Manager) opened(sub *subscription, conn transport.Conn, err error) bool {
	m.mu.Lock()
	if m.sub != sub {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		m.logger.Debug("discarding superseded transport", zap.String("transport_id", sub.id))
		return false
	}

	if err != nil {
		m.state = StateClosed
		m.lastError = transportError
		m.mu.Unlock()

		m.metrics.DialErrors.Inc()
		m.logger.Warn("dial failed",
			zap.String("transport_id", sub.id),
			zap.String("address", sub.address),
			zap.Error(err))
		m.notify()
		return false
	}

	sub.conn = conn
	m.state = StateOpen
	m.mu.Unlock()

	m.metrics.SetConnected(true)
	m.logger.Info("connected",
		zap.String("transport_id", sub.id),
		zap.String("remote_addr", conn.RemoteAddr()))
	m.notify()
	return true
}

func (m *Manager) readFailed(sub *subscription, conn transport.Conn, err error) {
	m.mu.Lock()
	if m.sub != sub {
		m.mu.Unlock()
		return
	}
	abnormal := !errors.Is(err, transport.ErrClosed)
	if abnormal {
		m.lastError = transportError
	}
	m.state = StateClosed
	m.mu.Unlock()

	conn.Close()
	m.metrics.SetConnected(false)
	if abnormal {
		m.logger.Warn("transport error", zap.String("transport_id", sub.id), zap.Error(err))
	} else {
		m.logger.Info("transport closed by peer", zap.String("transport_id", sub.id))
	}
	m.notify()
}

func (m *Manager) deliver(sub *subscription, frame string) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	current := m.sub == sub
	m.mu.Unlock()

	if !current {
		m.metrics.StaleFrames.Inc()
		return
	}
	m.metrics.FramesRead.Inc()
	if m.onMessage != nil {
		m.onMessage(frame)
	}
}

func (m *Manager) notify() {
	if m.onStatus == nil {
		return
	}
	m.onStatus(m.Snapshot())
}
