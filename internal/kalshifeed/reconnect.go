// Package kalshifeed implements the WebSocket price feed client (part of
// C6's upstream), producing decoded kalshi.Message values with automatic
// reconnection and resubscription on disconnect.
package kalshifeed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ReconnectConfig controls the exponential backoff used when the feed
// connection drops.
type ReconnectConfig struct {
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	MaxRetries     int // 0 = unlimited
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialDelay:   2 * time.Second,
		MaxDelay:       16 * time.Second,
		MaxRetries:     0,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
	}
}

type connState int32

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
	stateReconnecting
	stateClosed
)

// reconnectManager owns a single websocket connection to the Kalshi feed and
// keeps it alive across drops, replaying subscriptions on every reconnect.
type reconnectManager struct {
	url    string
	cfg    ReconnectConfig
	log    *zap.Logger

	conn   *websocket.Conn
	connMu sync.RWMutex

	state      int32
	retryCount int32

	closeChan chan struct{}
	closeOnce sync.Once

	onMessage   func([]byte)
	onExhausted func()

	subs   []interface{}
	subsMu sync.RWMutex
}

func newReconnectManager(url string, cfg ReconnectConfig, log *zap.Logger) *reconnectManager {
	return &reconnectManager{
		url:       url,
		cfg:       cfg,
		log:       log,
		closeChan: make(chan struct{}),
	}
}

func (m *reconnectManager) setOnMessage(handler func([]byte)) { m.onMessage = handler }

func (m *reconnectManager) setOnExhausted(handler func()) { m.onExhausted = handler }

func (m *reconnectManager) getState() connState { return connState(atomic.LoadInt32(&m.state)) }

func (m *reconnectManager) addSubscription(sub interface{}) {
	m.subsMu.Lock()
	m.subs = append(m.subs, sub)
	m.subsMu.Unlock()
}

func (m *reconnectManager) removeSubscription(match func(interface{}) bool) {
	m.subsMu.Lock()
	kept := m.subs[:0]
	for _, s := range m.subs {
		if !match(s) {
			kept = append(kept, s)
		}
	}
	m.subs = kept
	m.subsMu.Unlock()
}

func (m *reconnectManager) connect() error {
	select {
	case <-m.closeChan:
		return fmt.Errorf("feed manager is closed")
	default:
	}

	atomic.StoreInt32(&m.state, int32(stateConnecting))
	if err := m.dial(); err != nil {
		atomic.StoreInt32(&m.state, int32(stateDisconnected))
		return err
	}
	atomic.StoreInt32(&m.state, int32(stateConnected))
	atomic.StoreInt32(&m.retryCount, 0)

	go m.readPump()
	go m.pingPump()
	m.log.Info("feed connected", zap.String("url", m.url))
	return nil
}

func (m *reconnectManager) dial() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("feed dial: %w", err)
	}

	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()

	if err := m.resubscribe(); err != nil {
		m.log.Warn("resubscribe after connect failed", zap.Error(err))
	}
	return nil
}

func (m *reconnectManager) resubscribe() error {
	m.subsMu.RLock()
	subs := make([]interface{}, len(m.subs))
	copy(subs, m.subs)
	m.subsMu.RUnlock()

	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}

	for _, s := range subs {
		if err := conn.WriteJSON(s); err != nil {
			return err
		}
	}
	return nil
}

func (m *reconnectManager) readPump() {
	defer m.handleDisconnect(nil)
	for {
		select {
		case <-m.closeChan:
			return
		default:
		}

		m.connMu.RLock()
		conn := m.conn
		m.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(err)
			return
		}
		if m.onMessage != nil {
			m.onMessage(msg)
		}
	}
}

func (m *reconnectManager) pingPump() {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.closeChan:
			return
		case <-ticker.C:
			m.connMu.RLock()
			conn := m.conn
			m.connMu.RUnlock()
			if conn == nil || m.getState() != stateConnected {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(m.cfg.PongTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.handleDisconnect(err)
				return
			}
		}
	}
}

func (m *reconnectManager) handleDisconnect(err error) {
	select {
	case <-m.closeChan:
		return
	default:
	}

	state := m.getState()
	if state == stateReconnecting || state == stateClosed {
		return
	}
	atomic.StoreInt32(&m.state, int32(stateReconnecting))

	m.connMu.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connMu.Unlock()

	if err != nil {
		m.log.Warn("feed disconnected", zap.Error(err))
	}
	go m.reconnectLoop()
}

func (m *reconnectManager) reconnectLoop() {
	delay := m.cfg.InitialDelay
	for {
		select {
		case <-m.closeChan:
			return
		default:
		}

		count := atomic.AddInt32(&m.retryCount, 1)
		if m.cfg.MaxRetries > 0 && int(count) > m.cfg.MaxRetries {
			m.log.Error("feed reconnect attempts exhausted", zap.Int("max_retries", m.cfg.MaxRetries))
			atomic.StoreInt32(&m.state, int32(stateDisconnected))
			if m.onExhausted != nil {
				m.onExhausted()
			}
			return
		}

		select {
		case <-m.closeChan:
			return
		case <-time.After(delay):
		}

		if err := m.dial(); err != nil {
			m.log.Warn("feed reconnect failed", zap.Int32("attempt", count), zap.Error(err))
			delay *= 2
			if delay > m.cfg.MaxDelay {
				delay = m.cfg.MaxDelay
			}
			continue
		}

		atomic.StoreInt32(&m.state, int32(stateConnected))
		atomic.StoreInt32(&m.retryCount, 0)
		go m.readPump()
		go m.pingPump()
		m.log.Info("feed reconnected")
		return
	}
}

func (m *reconnectManager) send(msg interface{}) error {
	if m.getState() != stateConnected {
		return fmt.Errorf("feed not connected")
	}
	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("feed has no connection")
	}
	return conn.WriteJSON(msg)
}

func (m *reconnectManager) close() error {
	m.closeOnce.Do(func() { close(m.closeChan) })
	atomic.StoreInt32(&m.state, int32(stateClosed))

	m.connMu.Lock()
	defer m.connMu.Unlock()
	if m.conn != nil {
		err := m.conn.Close()
		m.conn = nil
		return err
	}
	return nil
}
