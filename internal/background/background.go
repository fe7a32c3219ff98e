// Package background implements the Background Source (spec.md §4.3):
// the always-available local loop file. Each tick does one packet's
// worth of work and reports what it produced; on EOF it seeks back to
// the start and flushes decoder buffers so the caller can simply retry.
package background

import (
	"fmt"

	astiav "github.com/asticode/go-astiav"

	"github.com/e1z0/srtcompositor/internal/audioqueue"
	"github.com/e1z0/srtcompositor/internal/media"
	"github.com/e1z0/srtcompositor/internal/slot"
)

// Result reports what one Tick produced.
type Result int

const (
	// None: no video or audio frame came out of this tick (a non-AV
	// packet, a decoder needing more input, or a just-handled EOF loop).
	None Result = iota
	// VideoProduced: outPlanes was filled with a freshly decoded, scaled
	// frame.
	VideoProduced
	// AudioProduced: resampled samples were appended to the caller's
	// audio queue.
	AudioProduced
)

// Source owns the background file's demux/decode/scale/resample
// session for its entire lifetime; it is touched only by the Pacing
// Loop goroutine.
type Source struct {
	fc *astiav.FormatContext

	videoStreamIdx int
	audioStreamIdx int // -1 if the file has no audio track

	videoDecCtx *astiav.CodecContext
	audioDecCtx *astiav.CodecContext

	scaler    *media.Scaler
	resampler *media.Resampler

	frame *astiav.Frame
	pkt   *astiav.Packet
}

// Open opens path and prepares it for looped playback at outW x outH /
// sampleRate. A background file without a video stream is a fatal
// startup error, matching the original's "fail if no video" rule.
func Open(path string, outW, outH, sampleRate int) (*Source, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, fmt.Errorf("AllocFormatContext")
	}
	if err := fc.OpenInput(path, nil, nil); err != nil {
		fc.Free()
		return nil, fmt.Errorf("OpenInput(%s): %w", path, err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.Free()
		return nil, fmt.Errorf("FindStreamInfo(%s): %w", path, err)
	}

	s := &Source{fc: fc, videoStreamIdx: -1, audioStreamIdx: -1}

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
		return nil, fmt.Errorf("background file has no video stream")
	}

	if err := s.openVideoDecoder(); err != nil {
		s.Close()
		return nil, err
	}
	if s.audioStreamIdx >= 0 {
		if err := s.openAudioDecoder(); err != nil {
			// Audio is optional for the background file; if its decoder
			// can't be opened, proceed video-only rather than failing
			// startup over it.
			s.audioStreamIdx = -1
		}
	}

	s.scaler = media.NewScaler(outW, outH)
	if s.audioStreamIdx >= 0 {
		s.resampler = media.NewResampler(sampleRate)
	}
	s.frame = astiav.AllocFrame()
	s.pkt = astiav.AllocPacket()

	return s, nil
}

func (s *Source) openVideoDecoder() error {
	st := s.fc.Streams()[s.videoStreamIdx]
	par := st.CodecParameters()
	dec := astiav.FindDecoder(par.CodecID())
	if dec == nil {
		return fmt.Errorf("FindDecoder(background video) nil")
	}
	ctx := astiav.AllocCodecContext(dec)
	if ctx == nil {
		return fmt.Errorf("AllocCodecContext(background video) nil")
	}
	if err := par.ToCodecContext(ctx); err != nil {
		ctx.Free()
		return fmt.Errorf("ToCodecContext(background video): %w", err)
	}
	ctx.SetFlags(astiav.CodecContextFlagLowDelay)
	ctx.SetFlags2(astiav.CodecContextFlag2Fast)
	if err := ctx.Open(dec, nil); err != nil {
		ctx.Free()
		return fmt.Errorf("open background video decoder: %w", err)
	}
	s.videoDecCtx = ctx
	return nil
}

func (s *Source) openAudioDecoder() error {
	st := s.fc.Streams()[s.audioStreamIdx]
	par := st.CodecParameters()
	dec := astiav.FindDecoder(par.CodecID())
	if dec == nil {
		return fmt.Errorf("FindDecoder(background audio) nil")
	}
	ctx := astiav.AllocCodecContext(dec)
	if ctx == nil {
		return fmt.Errorf("AllocCodecContext(background audio) nil")
	}
	if err := par.ToCodecContext(ctx); err != nil {
		ctx.Free()
		return fmt.Errorf("ToCodecContext(background audio): %w", err)
	}
	ctx.SetFlags(astiav.CodecContextFlagLowDelay)
	ctx.SetFlags2(astiav.CodecContextFlag2Fast)
	if err := ctx.Open(dec, nil); err != nil {
		ctx.Free()
		return fmt.Errorf("open background audio decoder: %w", err)
	}
	s.audioDecCtx = ctx
	return nil
}

// Tick performs one packet's worth of work. On EOF it loops (seeks to
// the start and flushes decoder buffers) and returns None; the caller
// retries.
func (s *Source) Tick(outPlanes *slot.Planes, audioQueue *audioqueue.Queue) (Result, error) {
	if err := s.fc.ReadFrame(s.pkt); err != nil {
		if err == astiav.ErrEof {
			return None, s.loop()
		}
		return None, fmt.Errorf("ReadFrame(background): %w", err)
	}
	defer s.pkt.Unref()

	switch s.pkt.StreamIndex() {
	case s.videoStreamIdx:
		return s.decodeVideo(outPlanes)
	case s.audioStreamIdx:
		return s.decodeAudio(audioQueue)
	default:
		return None, nil
	}
}

func (s *Source) decodeVideo(outPlanes *slot.Planes) (Result, error) {
	if err := s.videoDecCtx.SendPacket(s.pkt); err != nil {
		return None, fmt.Errorf("SendPacket(background video): %w", err)
	}
	for {
		if err := s.videoDecCtx.ReceiveFrame(s.frame); err != nil {
			if err == astiav.ErrEagain || err == astiav.ErrEof {
				return None, nil
			}
			return None, fmt.Errorf("ReceiveFrame(background video): %w", err)
		}
		err := s.scaler.ScaleTo(s.frame, outPlanes)
		s.frame.Unref()
		if err != nil {
			return None, err
		}
		return VideoProduced, nil
	}
}

func (s *Source) decodeAudio(audioQueue *audioqueue.Queue) (Result, error) {
	if s.audioDecCtx == nil {
		return None, nil
	}
	if err := s.audioDecCtx.SendPacket(s.pkt); err != nil {
		return None, fmt.Errorf("SendPacket(background audio): %w", err)
	}
	produced := false
	for {
		if err := s.audioDecCtx.ReceiveFrame(s.frame); err != nil {
			if err == astiav.ErrEagain || err == astiav.ErrEof {
				break
			}
			return None, fmt.Errorf("ReceiveFrame(background audio): %w", err)
		}
		planes, err := s.resampler.Convert(s.frame)
		s.frame.Unref()
		if err != nil {
			return None, err
		}
		audioQueue.Push(planes)
		produced = true
	}
	if produced {
		return AudioProduced, nil
	}
	return None, nil
}

// loop seeks back to the start of the file and flushes decoder buffers,
// so subsequent Tick calls resume decoding from the beginning.
func (s *Source) loop() error {
	if err := s.fc.SeekFrame(-1, 0, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("SeekFrame(background loop): %w", err)
	}
	s.videoDecCtx.FlushBuffers()
	if s.audioDecCtx != nil {
		s.audioDecCtx.FlushBuffers()
	}
	return nil
}

// Close releases every resource the background session owns.
func (s *Source) Close() {
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
