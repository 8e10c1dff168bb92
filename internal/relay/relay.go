package relay

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/proctorhub/backend/internal/event"
	"github.com/proctorhub/backend/internal/protocol"
	"github.com/proctorhub/backend/internal/registry"
)

const appendTimeout = 5 * time.Second

// Store is the durable sink for relayed events. A failed Append is reported
// to the engine's counters and never reaches the broadcast path.
type Store interface {
	Append(ctx context.Context, ev event.Event) error
}

// Engine fans incoming events out to the session's current members and
// queues them for persistence. The two paths are independent: a slow or
// failing store never delays or fails a broadcast, and a dropped frame to
// one member never blocks delivery to the rest.
//
// Persistence runs on a single worker goroutine draining a buffered queue,
// which preserves arrival order. The engine holds no session state of its
// own; membership belongs to the registry.
type Engine struct {
	registry *registry.Registry
	store    Store
	done     chan struct{}
	now      func() time.Time

	qmu     sync.RWMutex // guards queue close vs. concurrent enqueue
	queue   chan event.Event
	qclosed bool

	broadcasts      atomic.Uint64
	deliveryDropped atomic.Uint64
	persisted       atomic.Uint64
	persistFailed   atomic.Uint64
	persistDropped  atomic.Uint64
	degraded        atomic.Bool
}

// New starts an engine. store may be nil when the durable log was
// unreachable at boot: the engine then runs relay-only, permanently
// degraded, counting every event as a persistence failure.
func New(reg *registry.Registry, store Store, queueSize int) *Engine {
	if queueSize <= 0 {
		queueSize = 256
	}
	e := &Engine{
		registry: reg,
		store:    store,
		queue:    make(chan event.Event, queueSize),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	if store == nil {
		e.degraded.Store(true)
		log.Println("relay: no event store, running in degraded relay-only mode")
		close(e.done)
		return e
	}
	go e.persistLoop()
	return e
}

// HandleEvent validates, broadcasts, and schedules persistence for one
// inbound event. The returned error signals a client protocol error to the
// gateway; the relay itself stays up.
//
// The broadcast goes to every current member of the session, the sender
// included.
func (e *Engine) HandleEvent(sender registry.Party, ev event.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	ev.ResolveTimestamp(e.now().UTC())

	data, err := protocol.EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	for _, member := range e.registry.MembersOf(ev.SessionID) {
		if !member.Deliver(data) {
			e.deliveryDropped.Add(1)
		}
	}
	e.broadcasts.Add(1)

	if e.store == nil {
		e.persistFailed.Add(1)
		return nil
	}

	e.qmu.RLock()
	defer e.qmu.RUnlock()
	if e.qclosed {
		e.persistDropped.Add(1)
		return nil
	}
	select {
	case e.queue <- ev:
	default:
		// Queue full: persistence is best-effort and must never block the
		// relay. The drop is visible in the status counters.
		e.persistDropped.Add(1)
		log.Printf("relay: persist queue full, dropping %s event for session %s", ev.Type, ev.SessionID)
	}
	return nil
}

func (e *Engine) persistLoop() {
	defer close(e.done)
	for ev := range e.queue {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		err := e.store.Append(ctx, ev)
		cancel()
		if err != nil {
			e.persistFailed.Add(1)
			if e.degraded.CompareAndSwap(false, true) {
				log.Printf("relay: event store failing, entering degraded mode: %v", err)
			}
			continue
		}
		e.persisted.Add(1)
		if e.degraded.CompareAndSwap(true, false) {
			log.Println("relay: event store recovered")
		}
	}
}

// Close drains the persist queue and stops the worker. Events already
// accepted keep flowing to the store even if their senders are gone; events
// arriving after Close are dropped.
func (e *Engine) Close() {
	e.qmu.Lock()
	if !e.qclosed {
		e.qclosed = true
		close(e.queue)
	}
	e.qmu.Unlock()
	<-e.done
}

// Status is a point-in-time snapshot of the engine's counters.
type Status struct {
	Broadcasts      uint64 `json:"broadcasts"`
	DeliveryDropped uint64 `json:"deliveryDropped"`
	Persisted       uint64 `json:"persisted"`
	PersistFailed   uint64 `json:"persistFailed"`
	PersistDropped  uint64 `json:"persistDropped"`
	QueueDepth      int    `json:"queueDepth"`
	Mode            string `json:"mode"`
}

func (e *Engine) Status() Status {
	mode := "ok"
	switch {
	case e.store == nil:
		mode = "disabled"
	case e.degraded.Load():
		mode = "degraded"
	}
	return Status{
		Broadcasts:      e.broadcasts.Load(),
		DeliveryDropped: e.deliveryDropped.Load(),
		Persisted:       e.persisted.Load(),
		PersistFailed:   e.persistFailed.Load(),
		PersistDropped:  e.persistDropped.Load(),
		QueueDepth:      len(e.queue),
		Mode:            mode,
	}
}
