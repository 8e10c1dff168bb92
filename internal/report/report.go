package report

import (
	"time"

	"github.com/proctorhub/backend/internal/event"
)

// Report is the document served to the report collaborator, derived
// entirely from the durable event log.
type Report struct {
	SessionID       string        `json:"sessionId"`
	CandidateID     string        `json:"candidateId,omitempty"`
	StartedAt       *time.Time    `json:"startedAt,omitempty"`
	EndedAt         *time.Time    `json:"endedAt,omitempty"`
	DurationSeconds float64       `json:"durationSeconds"`
	Events          []event.Event `json:"events"`
}

// Build assembles a report from the session's events, which must already be
// ordered by timestamp (the store's query order). The candidate identity is
// the first non-empty candidateId seen; sessions with no events produce an
// empty report rather than an error.
func Build(sessionID string, events []event.Event) Report {
	r := Report{
		SessionID: sessionID,
		Events:    events,
	}
	if r.Events == nil {
		r.Events = []event.Event{}
	}
	if len(events) == 0 {
		return r
	}

	start := events[0].Ts
	end := events[len(events)-1].Ts
	r.StartedAt = &start
	r.EndedAt = &end
	r.DurationSeconds = end.Sub(start).Seconds()

	for _, ev := range events {
		if ev.CandidateID != "" {
			r.CandidateID = ev.CandidateID
			break
		}
	}
	return r
}
