package mock

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/proctorhub/backend/internal/event"
	"github.com/proctorhub/backend/internal/registry"
	"github.com/proctorhub/backend/internal/relay"
)

// weighted pool of the kinds real producers emit; focus loss dominates in
// practice, object detections are rare.
var kinds = []struct {
	kind   event.Kind
	detail string
	weight int
}{
	{event.KindFocusLost, "tab switched", 5},
	{event.KindNoFace, "no face in frame", 3},
	{event.KindMultipleFaces, "2 faces in frame", 1},
	{event.KindObjectDetected, "cell phone", 1},
	{event.KindVideoUploaded, "", 1},
}

// Generator feeds synthetic proctoring events through the real relay
// pipeline, for local development and soak testing without a browser
// producer.
type Generator struct {
	engine   *relay.Engine
	registry *registry.Registry
	session  string
	interval time.Duration
	rng      *rand.Rand
}

func NewGenerator(engine *relay.Engine, reg *registry.Registry, session string, interval time.Duration) *Generator {
	if session == "" {
		session = "mock-exam"
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Generator{
		engine:   engine,
		registry: reg,
		session:  session,
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start emits events until ctx is canceled. The generator joins the session
// itself so the membership and fan-out paths are exercised even with no
// observer connected.
func (g *Generator) Start(ctx context.Context) {
	g.registry.Join(discard{}, g.session)
	log.Printf("mock: generating events for session %s every %s", g.session, g.interval)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	candidate := fmt.Sprintf("mock-candidate-%d", g.rng.Intn(1000))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ev := g.nextEvent(candidate)
			if err := g.engine.HandleEvent(discard{}, ev); err != nil {
				log.Printf("mock: relay rejected event: %v", err)
			}
		}
	}
}

func (g *Generator) nextEvent(candidate string) event.Event {
	total := 0
	for _, k := range kinds {
		total += k.weight
	}
	n := g.rng.Intn(total)
	for _, k := range kinds {
		if n < k.weight {
			return event.Event{
				Type:        k.kind,
				Detail:      k.detail,
				SessionID:   g.session,
				CandidateID: candidate,
			}
		}
		n -= k.weight
	}
	return event.Event{Type: event.KindFocusLost, SessionID: g.session, CandidateID: candidate}
}

// discard is the generator's own party handle; frames fanned back to it are
// dropped on the floor.
type discard struct{}

func (discard) Deliver([]byte) bool { return true }
