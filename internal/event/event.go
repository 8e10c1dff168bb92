package event

import (
	"errors"
	"time"
)

// Kind tags a proctoring event. It is an open enumeration: producers may
// introduce new kinds without a server-side change, so unknown values are
// valid and relayed/persisted as-is.
type Kind string

const (
	KindFocusLost      Kind = "FocusLost"
	KindNoFace         Kind = "NoFace"
	KindMultipleFaces  Kind = "MultipleFaces"
	KindObjectDetected Kind = "ObjectDetected"
	KindVideoUploaded  Kind = "VideoUploaded"
)

// ErrMissingSession is returned for events that carry no session id. Such
// events are dropped without broadcast or persistence.
var ErrMissingSession = errors.New("event has no session id")

// Event is one reported occurrence within an exam session. Immutable after
// receipt at the gateway.
type Event struct {
	Type        Kind      `json:"type"`
	Detail      string    `json:"detail,omitempty"`
	Ts          time.Time `json:"ts"`
	SessionID   string    `json:"sessionId"`
	CandidateID string    `json:"candidateId,omitempty"`
}

// Validate checks the invariants required before an event may be broadcast
// or persisted.
func (e *Event) Validate() error {
	if e.SessionID == "" {
		return ErrMissingSession
	}
	return nil
}

// ResolveTimestamp fills in the server clock when the producer supplied no
// timestamp. Producer-supplied timestamps are kept untouched.
func (e *Event) ResolveTimestamp(now time.Time) {
	if e.Ts.IsZero() {
		e.Ts = now
	}
}
