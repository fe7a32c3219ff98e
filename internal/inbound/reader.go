// Package inbound implements the Inbound Reader (spec.md §4.2): a
// suture.Service that connects to the unreliable inbound feed, decodes
// and scales video / resamples audio, and publishes into the Shared
// Frame Slot. It never blocks the Pacing Loop — all it does is publish;
// it has no clients of its own to serve.
package inbound

import (
	"context"
	"fmt"
	"log"
	"time"

	astiav "github.com/asticode/go-astiav"

	"github.com/e1z0/srtcompositor/internal/media"
	"github.com/e1z0/srtcompositor/internal/slot"
	"github.com/e1z0/srtcompositor/internal/statuslog"
)

// Config holds everything the reader needs that doesn't change across
// reconnects.
type Config struct {
	URL           string
	OutWidth      int
	OutHeight     int
	SampleRate    int
	LossTimeout   time.Duration
	RetryBackoff  time.Duration
}

// Reader owns exactly one inbound session's decoder/scaler/resampler at
// a time, for the lifetime of that session; it touches the Shared Slot
// only through its locked accessors.
type Reader struct {
	cfg  Config
	slot *slot.Slot
	log  *statuslog.Log
}

// New returns a Reader publishing into slot.
func New(cfg Config, slot *slot.Slot, log *statuslog.Log) *Reader {
	return &Reader{cfg: cfg, slot: slot, log: log}
}

// Serve runs until ctx is canceled, matching the suture.Service
// contract. It is the reconnect loop: open-or-retry, then read packets
// until the session ends, then repeat.
func (r *Reader) Serve(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		sess, resolution, err := r.openSession(ctx)
		if err != nil {
			r.log.SRTConnectFailed(err.Error())
			if !r.sleepBackoff(ctx) {
				return ctx.Err()
			}
			continue
		}

		r.slot.MarkConnected()
		r.log.SRTConnected(resolution)

		r.runSession(ctx, sess)

		sess.Close()
		r.slot.MarkDisconnected()
	}
}

// sleepBackoff sleeps the reconnect backoff divided into ten slices,
// checking ctx between slices so shutdown latency is bounded to
// backoff/10. Returns false if ctx was canceled during the sleep.
func (r *Reader) sleepBackoff(ctx context.Context) bool {
	const slices = 10
	slice := r.cfg.RetryBackoff / slices
	for i := 0; i < slices; i++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(slice):
		}
	}
	return true
}

// session holds one inbound connection's demux/decode/scale/resample
// state. Exactly one goroutine (the Reader's own) touches it, for its
// entire lifetime, per the per-context single-threaded rule.
type session struct {
	fc *astiav.FormatContext

	videoStreamIdx int
	audioStreamIdx int // -1 if inbound has no audio track

	videoDecCtx *astiav.CodecContext
	audioDecCtx *astiav.CodecContext

	scaler    *media.Scaler
	resampler *media.Resampler

	frame *astiav.Frame
	pkt   *astiav.Packet
}

// openSession opens the inbound URL with the low-latency options the
// spec requires and fails the session if no video stream is discovered.
func (r *Reader) openSession(ctx context.Context) (*session, string, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, "", fmt.Errorf("AllocFormatContext")
	}

	opts := astiav.NewDictionary()
	defer opts.Free()
	timeoutUs := fmt.Sprintf("%d", r.cfg.LossTimeout.Microseconds())
	_ = opts.Set("timeout", timeoutUs, 0)
	_ = opts.Set("rw_timeout", timeoutUs, 0)
	_ = opts.Set("probesize", "500000", 0)
	_ = opts.Set("analyzeduration", "500000", 0)
	_ = opts.Set("flags", "+low_delay", 0)
	_ = opts.Set("fflags", "+nobuffer", 0)

	log.Printf("inbound session options: %s", media.JoinDict(opts))

	if err := fc.OpenInput(r.cfg.URL, nil, opts); err != nil {
		fc.Free()
		return nil, "", fmt.Errorf("OpenInput: %w", err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.Free()
		return nil, "", fmt.Errorf("FindStreamInfo: %w", err)
	}

	s := &session{fc: fc, videoStreamIdx: -1, audioStreamIdx: -1}
	for i, st := range fc.Streams() {
		switch st.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if s.videoStreamIdx < 0 {
				s.videoStreamIdx = i
			}
		case astiav.MediaTypeAudio:
			if s.audioStreamIdx < 0 {
				s.audioStreamIdx = i
			}
		}
	}
	if s.videoStreamIdx < 0 {
		fc.Free()
		return nil, "", fmt.Errorf("inbound stream has no video")
	}

	if err := s.openVideoDecoder(); err != nil {
		fc.Free()
		return nil, "", err
	}
	if s.audioStreamIdx >= 0 {
		if err := s.openAudioDecoder(); err != nil {
			// Inbound streams without a usable audio decoder are still
			// valid sessions (video-only is allowed); just don't decode
			// audio for this one.
			s.audioDecCtx = nil
			s.audioStreamIdx = -1
		}
	}

	s.scaler = media.NewScaler(r.cfg.OutWidth, r.cfg.OutHeight)
	if s.audioStreamIdx >= 0 {
		s.resampler = media.NewResampler(r.cfg.SampleRate)
	}
	s.frame = astiav.AllocFrame()
	s.pkt = astiav.AllocPacket()

	vst := fc.Streams()[s.videoStreamIdx]
	resolution := fmt.Sprintf("%dx%d", vst.CodecParameters().Width(), vst.CodecParameters().Height())
	return s, resolution, nil
}

func (s *session) openVideoDecoder() error {
	st := s.fc.Streams()[s.videoStreamIdx]
	par := st.CodecParameters()
	dec := astiav.FindDecoder(par.CodecID())
	if dec == nil {
		return fmt.Errorf("FindDecoder(inbound video) nil")
	}
	ctx := astiav.AllocCodecContext(dec)
	if ctx == nil {
		return fmt.Errorf("AllocCodecContext(inbound video) nil")
	}
	if err := par.ToCodecContext(ctx); err != nil {
		ctx.Free()
		return fmt.Errorf("ToCodecContext(inbound video): %w", err)
	}
	ctx.SetThreadCount(1)
	ctx.SetFlags(astiav.CodecContextFlagLowDelay)
	ctx.SetFlags2(astiav.CodecContextFlag2Fast)
	if err := ctx.Open(dec, nil); err != nil {
		ctx.Free()
		return fmt.Errorf("open inbound video decoder: %w", err)
	}
	s.videoDecCtx = ctx
	return nil
}

func (s *session) openAudioDecoder() error {
	st := s.fc.Streams()[s.audioStreamIdx]
	par := st.CodecParameters()
	dec := astiav.FindDecoder(par.CodecID())
	if dec == nil {
		return fmt.Errorf("FindDecoder(inbound audio) nil")
	}
	ctx := astiav.AllocCodecContext(dec)
	if ctx == nil {
		return fmt.Errorf("AllocCodecContext(inbound audio) nil")
	}
	if err := par.ToCodecContext(ctx); err != nil {
		ctx.Free()
		return fmt.Errorf("ToCodecContext(inbound audio): %w", err)
	}
	ctx.SetFlags(astiav.CodecContextFlagLowDelay)
	ctx.SetFlags2(astiav.CodecContextFlag2Fast)
	if err := ctx.Open(dec, nil); err != nil {
		ctx.Free()
		return fmt.Errorf("open inbound audio decoder: %w", err)
	}
	s.audioDecCtx = ctx
	return nil
}

func (s *session) Close() {
	if s.pkt != nil {
		s.pkt.Free()
	}
	if s.frame != nil {
		s.frame.Free()
	}
	if s.resampler != nil {
		s.resampler.Close()
	}
	if s.scaler != nil {
		s.scaler.Close()
	}
	if s.audioDecCtx != nil {
		s.audioDecCtx.Free()
	}
	if s.videoDecCtx != nil {
		s.videoDecCtx.Free()
	}
	if s.fc != nil {
		s.fc.Free()
	}
}

// runSession reads packets until a read error, a liveness timeout, or
// ctx cancellation. It never returns an error; the caller only needs to
// know the session ended so it can close and reconnect.
func (r *Reader) runSession(ctx context.Context, s *session) {
	out := r.slot.NewPlanes()

	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.fc.ReadFrame(s.pkt); err != nil {
			r.log.SRTDropped(statuslog.DropReadError)
			return
		}

		switch s.pkt.StreamIndex() {
		case s.videoStreamIdx:
			r.decodeVideo(s, &out)
		case s.audioStreamIdx:
			r.decodeAudio(s)
		}
		s.pkt.Unref()

		if r.slot.LivenessElapsed() > r.cfg.LossTimeout {
			r.log.SRTDropped(statuslog.DropTimeout)
			return
		}
	}
}

func (r *Reader) decodeVideo(s *session, out *slot.Planes) {
	if err := s.videoDecCtx.SendPacket(s.pkt); err != nil {
		return
	}
	for {
		if err := s.videoDecCtx.ReceiveFrame(s.frame); err != nil {
			return
		}
		err := s.scaler.ScaleTo(s.frame, out)
		s.frame.Unref()
		if err != nil {
			continue
		}
		r.slot.PublishVideo(out.Y, out.Cb, out.Cr)
	}
}

func (r *Reader) decodeAudio(s *session) {
	if s.audioDecCtx == nil {
		return
	}
	if err := s.audioDecCtx.SendPacket(s.pkt); err != nil {
		return
	}
	for {
		if err := s.audioDecCtx.ReceiveFrame(s.frame); err != nil {
			return
		}
		planes, err := s.resampler.Convert(s.frame)
		s.frame.Unref()
		if err != nil {
			continue
		}
		r.slot.PublishAudio(planes)
	}
}
