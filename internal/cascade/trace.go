package cascade

// EventType distinguishes trace event kinds.
type EventType string

const (
	// EventPassStart marks the beginning of a pass.
	EventPassStart EventType = "pass_start"
	// EventParityQuery records one answered oracle query.
	EventParityQuery EventType = "parity_query"
	// EventCorrection records one Working-key bit flip.
	EventCorrection EventType = "correction"
	// EventCascadeRequeue records a block re-queued for verification
	// because a bit it contains was just corrected.
	EventCascadeRequeue EventType = "cascade_requeue"
	// EventPassEnd marks the end of a pass, after the cascade queue
	// has drained.
	EventPassEnd EventType = "pass_end"
	// EventOutcome is the final event of a session.
	EventOutcome EventType = "outcome"
)

// TraceEvent is one entry in a session's protocol transcript.
//
// Seq orders events totally within a session. Which other fields are
// meaningful depends on Type; unused fields stay at their zero value
// and are omitted from serialized transcripts.
type TraceEvent struct {
	Seq  int64     `json:"seq"`
	Type EventType `json:"type"`

	Pass      int `json:"pass,omitempty"`
	Block     int `json:"block,omitempty"`
	BlockSize int `json:"block_size,omitempty"`

	// Index is the corrected logical index (correction events).
	Index int `json:"index,omitempty"`

	// Parity is the answered parity bit (parity query events).
	Parity bool `json:"parity,omitempty"`

	// Leaked is the cumulative leaked-bit count after this event.
	Leaked int `json:"leaked,omitempty"`

	// Corrections is the cumulative correction count (pass_end, outcome).
	Corrections int `json:"corrections,omitempty"`

	// Outcome is the session outcome (outcome events only).
	Outcome string `json:"outcome,omitempty"`

	// Reason is the failure code (failed outcome events only).
	Reason string `json:"reason,omitempty"`
}

// Recorder consumes trace events in seq order. Implementations must not
// mutate the session from inside the callback.
type Recorder interface {
	Record(e TraceEvent)
}

// TraceLog is a Recorder that collects events in memory. It is what the
// harness and the experiment runner pass to a session when they need
// the full transcript.
type TraceLog struct {
	events []TraceEvent
}

// NewTraceLog creates an empty trace log.
func NewTraceLog() *TraceLog {
	return &TraceLog{}
}

// Record implements Recorder.
func (l *TraceLog) Record(e TraceEvent) {
	l.events = append(l.events, e)
}

// Events returns the recorded events in seq order.
func (l *TraceLog) Events() []TraceEvent {
	return l.events
}

// CountType returns how many recorded events have the given type.
func (l *TraceLog) CountType(t EventType) int {
	n := 0
	for _, e := range l.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
