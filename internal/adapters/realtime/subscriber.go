package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is a change notification pushed by the ledger when production state
// changes server-side (auto-completion, a collection from another device).
type Event struct {
	Type      string          `json:"type"`
	Kind      string          `json:"kind,omitempty"`
	SlotID    string          `json:"slot_id,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

const (
	EventSlotChanged  = "slot_changed"
	EventStateChanged = "state_changed"
)

type subscribeMsg struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type Config struct {
	URL   string
	Token string
}

// Subscriber maintains a websocket connection to the ledger's change feed
// and delivers events on a channel. It reconnects with exponential backoff
// and drops events when the consumer falls behind rather than blocking the
// read loop.
type Subscriber struct {
	cfg Config

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	lastErr   string

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}

	events chan Event
}

func NewSubscriber(cfg Config) *Subscriber {
	return &Subscriber{
		cfg:    cfg,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		events: make(chan Event, 16),
	}
}

// Events is the stream of change notifications. The channel is closed when
// the subscriber shuts down.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

func (s *Subscriber) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Subscriber) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		// Wake up a blocking ReadMessage so the loop can exit.
		s.disconnect()
		<-s.done
	})
}

func (s *Subscriber) disconnect() {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}

func (s *Subscriber) run() {
	defer close(s.done)
	defer close(s.events)

	backoff := 200 * time.Millisecond
	for {
		select {
		case <-s.stop:
			s.disconnect()
			return
		default:
		}

		err := s.connectAndReadLoop()
		if err == nil {
			return
		}

		s.mu.Lock()
		s.connected = false
		s.lastErr = err.Error()
		s.mu.Unlock()
		log.Printf("Realtime connection lost: %v (reconnecting in %s)", err, backoff)

		select {
		case <-s.stop:
			s.disconnect()
			return
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
			if backoff > 5*time.Second {
				backoff = 5 * time.Second
			}
		}
	}
}

func (s *Subscriber) connectAndReadLoop() error {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.Dial(s.cfg.URL, http.Header{})
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(subscribeMsg{Type: "subscribe", Token: s.cfg.Token}); err != nil {
		_ = conn.Close()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.lastErr = ""
	s.mu.Unlock()

	for {
		select {
		case <-s.stop:
			_ = conn.Close()
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return err
		}

		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			continue
		}
		switch ev.Type {
		case EventSlotChanged, EventStateChanged:
			select {
			case s.events <- ev:
			default:
				// Consumer is behind; the next full resync covers the gap.
			}
		}
	}
}
