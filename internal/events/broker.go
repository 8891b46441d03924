package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/muxpilot/muxpilot/internal/logging"
)

var eventsLog = logging.ForComponent(logging.CompEvents)

// subscriberBuffer is the per-subscriber queue depth. A slow subscriber
// loses events rather than stalling the emitting loop.
const subscriberBuffer = 128

// Broker fans emitted events out to in-process subscribers and to clients
// connected on a unix socket, one JSON object per line. It implements
// Publisher.
type Broker struct {
	mu       sync.Mutex
	subs     map[int]chan Event
	nextID   int
	listener net.Listener
	closed   bool
}

// NewBroker creates an unstarted broker. Publish works immediately;
// Listen adds the socket surface.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan Event)}
}

// Publish implements Publisher. Never blocks: full subscriber queues drop
// the event.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			eventsLog.Debug("subscriber_dropped_event",
				slog.Int("subscriber", id),
				slog.String("type", ev.Type))
		}
	}
}

// Subscribe registers an in-process subscriber. The returned cancel func
// must be called to release it.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Listen starts accepting subscribers on a unix socket. A stale socket
// file from a previous run is removed first.
func (b *Broker) Listen(socketPath string) error {
	_ = os.Remove(socketPath)
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", socketPath, err)
	}

	b.mu.Lock()
	b.listener = ln
	b.mu.Unlock()

	go b.acceptLoop(ln)
	eventsLog.Info("broker_listening", slog.String("socket", socketPath))
	return nil
}

func (b *Broker) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed during shutdown.
			return
		}
		go b.serveConn(conn)
	}
}

// serveConn streams events to one socket client until the write fails or
// the broker closes. The client is read-only; anything it sends is ignored.
func (b *Broker) serveConn(conn net.Conn) {
	defer conn.Close()

	ch, cancel := b.Subscribe()
	defer cancel()

	enc := json.NewEncoder(conn)
	for ev := range ch {
		if err := enc.Encode(ev); err != nil {
			eventsLog.Debug("socket_subscriber_gone", slog.String("error", err.Error()))
			return
		}
	}
}

// Close stops the listener and releases all subscribers.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.listener != nil {
		b.listener.Close()
		b.listener = nil
	}
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
