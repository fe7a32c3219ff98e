// Package slot implements the Shared Frame Slot: the single-writer,
// single-reader exchange point between the Inbound Reader and the
// Pacing Encoder Loop.
//
// A Slot holds the latest decoded inbound video frame (last-writer-wins,
// no queue), a FIFO of inbound audio samples, and liveness state.
// Every field is guarded by one mutex; nothing under the lock performs
// I/O, decode, or any call that can block — only plain buffer copies.
package slot

import (
	"sync"
	"time"

	"github.com/e1z0/srtcompositor/internal/audioqueue"
)

// Planes holds one planar 4:2:0 8-bit picture: Y, Cb, Cr byte planes and
// their line strides.
type Planes struct {
	Y, Cb, Cr         []byte
	YStride, CStride int
	Width, Height     int
}

// Slot is the shared frame exchange. Zero value is not usable; use New.
type Slot struct {
	mu sync.Mutex

	width, height int
	video         Planes
	hasVideo      bool
	connected     bool
	lastActivity  time.Time

	audioQueue *audioqueue.Queue
}

// New allocates a Slot sized to width x height, with an audio queue
// capacity of audioCapacitySamples per channel (≥ 2s of samples at the
// output sample rate, per the spec's capacity floor).
func New(width, height, audioCapacitySamples int) *Slot {
	ySize := width * height
	cSize := (width / 2) * (height / 2)
	return &Slot{
		width:  width,
		height: height,
		video: Planes{
			Y:       make([]byte, ySize),
			Cb:      make([]byte, cSize),
			Cr:      make([]byte, cSize),
			YStride: width,
			CStride: width / 2,
			Width:   width,
			Height:  height,
		},
		audioQueue:   audioqueue.New(audioCapacitySamples),
		lastActivity: time.Now(),
	}
}

// PublishVideo copies planes into the slot's picture buffer, marks video
// present, and refreshes the liveness timestamp. planes must match the
// slot's allocated dimensions.
func (s *Slot) PublishVideo(y, cb, cr []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.video.Y, y)
	copy(s.video.Cb, cb)
	copy(s.video.Cr, cr)
	s.hasVideo = true
	s.lastActivity = time.Now()
}

// PublishAudio appends samples to the audio queue and refreshes the
// liveness timestamp. The queue grows past the capacity reserved at
// construction rather than dropping samples; it is emptied only by
// DrainAudioInto, ResetAudio and MarkConnected.
func (s *Slot) PublishAudio(planes [audioqueue.Channels][]float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioQueue.Push(planes)
	s.lastActivity = time.Now()
}

// MarkConnected records that the inbound session is up, and resets the
// per-session state the spec requires on (re)connect: has_video cleared,
// audio queue emptied, liveness refreshed.
func (s *Slot) MarkConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.hasVideo = false
	s.audioQueue.Reset()
	s.lastActivity = time.Now()
}

// MarkDisconnected records that the inbound session has ended. has_video
// is cleared; residual audio samples are left for the Pacing Loop to
// drain per spec ("audio_queue may contain residual samples").
func (s *Slot) MarkDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.hasVideo = false
}

// Connected reports the reader's view of whether the inbound session is
// up, independent of whether a video frame has been published yet.
// Used for stats events, not for the video-source decision (that's
// Sample).
func (s *Slot) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Sample copies the current picture into dst and reports whether it was
// valid (connected && has_video). dst must be sized to the slot's
// dimensions.
func (s *Slot) Sample(dst *Planes) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected || !s.hasVideo {
		return false
	}
	copy(dst.Y, s.video.Y)
	copy(dst.Cb, s.video.Cb)
	copy(dst.Cr, s.video.Cr)
	return true
}

// DrainAudioInto moves every queued sample into local, leaving the
// slot's queue empty.
func (s *Slot) DrainAudioInto(local *audioqueue.Queue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioQueue.DrainInto(local)
}

// ResetAudio empties the slot's audio queue without touching has_video
// or connected. Used by the Audio Machine's GRACE state to discard stale
// inbound audio so it isn't replayed when SRT returns.
func (s *Slot) ResetAudio() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioQueue.Reset()
}

// LivenessElapsed returns the time since the last successful publish.
func (s *Slot) LivenessElapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// Dimensions returns the slot's fixed picture size.
func (s *Slot) Dimensions() (width, height int) {
	return s.width, s.height
}

// NewPlanes allocates a Planes buffer matching the slot's dimensions,
// for use as the out_planes argument to Sample.
func (s *Slot) NewPlanes() Planes {
	ySize := s.width * s.height
	cSize := (s.width / 2) * (s.height / 2)
	return Planes{
		Y:       make([]byte, ySize),
		Cb:      make([]byte, cSize),
		Cr:      make([]byte, cSize),
		YStride: s.width,
		CStride: s.width / 2,
		Width:   s.width,
		Height:  s.height,
	}
}
