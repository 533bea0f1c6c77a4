package cascade

// Clock is a monotonic logical counter stamping trace events.
//
// Every event a session emits carries a strictly increasing seq number
// from this clock. Ordering by seq reproduces the exact protocol order,
// which is what makes leak counts and transcripts comparable across
// runs with identical inputs. Never use wall-clock time for ordering.
//
// A session is single-threaded, so no synchronization is needed.
type Clock struct {
	seq int64
}

// NewClock creates a clock starting at 0; the first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and advances the clock.
func (c *Clock) Next() int64 {
	c.seq++
	return c.seq
}

// Current returns the current sequence number without advancing.
func (c *Clock) Current() int64 {
	return c.seq
}
