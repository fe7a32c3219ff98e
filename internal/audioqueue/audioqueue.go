// Package audioqueue implements a planar-float stereo sample FIFO. The
// capacity given to New is pre-reserved room, not a limit: Push grows the
// queue as needed and never drops samples; only Pop, TrimToMax, Reset and
// DrainInto remove them.
//
// Samples are stored per-channel (two contiguous float32 slices), matching
// the planar sample layout the rest of the pipeline uses end to end: no
// interleaving, no conversion, just append/read of equal-length channel
// slices.
package audioqueue

import "fmt"

// Channels is the fixed output channel count (stereo).
const Channels = 2

// Queue is a growable, trimmable FIFO of planar stereo float32 samples.
// Not safe for concurrent use; callers that share a Queue across
// goroutines must guard it themselves (see internal/slot).
type Queue struct {
	ch [Channels][]float32
}

// New returns an empty queue with room pre-reserved for capacitySamples
// per channel.
func New(capacitySamples int) *Queue {
	q := &Queue{}
	for c := range q.ch {
		q.ch[c] = make([]float32, 0, capacitySamples)
	}
	return q
}

// Len returns the number of samples currently queued per channel.
func (q *Queue) Len() int {
	return len(q.ch[0])
}

// Push appends samples to each channel. planes must have Channels entries
// of equal length, or Push panics — a programmer error, not a runtime
// condition.
func (q *Queue) Push(planes [Channels][]float32) {
	n := len(planes[0])
	for c := 1; c < Channels; c++ {
		if len(planes[c]) != n {
			panic(fmt.Sprintf("audioqueue: channel %d length %d != channel 0 length %d", c, len(planes[c]), n))
		}
	}
	for c := range q.ch {
		q.ch[c] = append(q.ch[c], planes[c]...)
	}
}

// Pop removes up to n samples from the front of the queue and returns
// them per channel. If fewer than n are available, it returns all of
// them; the returned slices' length is the actual count removed.
func (q *Queue) Pop(n int) [Channels][]float32 {
	avail := q.Len()
	if n > avail {
		n = avail
	}
	var out [Channels][]float32
	for c := range q.ch {
		out[c] = append([]float32(nil), q.ch[c][:n]...)
		q.ch[c] = q.ch[c][:copy(q.ch[c], q.ch[c][n:])]
	}
	return out
}

// Peek returns up to n samples from the front without removing them.
func (q *Queue) Peek(n int) [Channels][]float32 {
	avail := q.Len()
	if n > avail {
		n = avail
	}
	var out [Channels][]float32
	for c := range q.ch {
		out[c] = q.ch[c][:n]
	}
	return out
}

// TrimToMax discards the oldest samples until Len() <= max. Used to hold
// the Local SRT Queue to its 300ms cap.
func (q *Queue) TrimToMax(max int) {
	n := q.Len()
	if n <= max {
		return
	}
	drop := n - max
	for c := range q.ch {
		q.ch[c] = q.ch[c][:copy(q.ch[c], q.ch[c][drop:])]
	}
}

// Reset empties the queue in place, keeping its backing storage.
func (q *Queue) Reset() {
	for c := range q.ch {
		q.ch[c] = q.ch[c][:0]
	}
}

// DrainInto moves every queued sample from q into dst, leaving q empty.
func (q *Queue) DrainInto(dst *Queue) {
	if q.Len() == 0 {
		return
	}
	var planes [Channels][]float32
	for c := range q.ch {
		planes[c] = q.ch[c]
	}
	dst.Push(planes)
	q.Reset()
}
