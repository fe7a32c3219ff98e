// Package output implements the Output Muxer (spec.md §4.6): an FLV
// container over the process's stdout pipe, carrying an H.264 video
// track and an AAC audio track, plus the two encode primitives the
// Pacing Loop drives every tick.
package output

import (
	"fmt"
	"math"

	astiav "github.com/asticode/go-astiav"

	"github.com/e1z0/srtcompositor/internal/audioqueue"
	"github.com/e1z0/srtcompositor/internal/slot"
)

// Config describes the fixed output format, set once at startup.
type Config struct {
	Width, Height int
	FPS           int
	VideoBitrate  int
	AudioBitrate  int
	SampleRate    int
}

// Muxer owns the encoders, the muxer format context, and the output
// clock (video_pts, audio_pts). It is touched only from the Pacing Loop
// goroutine, per the per-context single-threaded rule.
type Muxer struct {
	cfg Config

	fc *astiav.FormatContext
	io *astiav.IOContext

	videoEncCtx *astiav.CodecContext
	videoStream *astiav.Stream
	videoPkt    *astiav.Packet

	audioEncCtx *astiav.CodecContext
	audioStream *astiav.Stream
	audioPkt    *astiav.Packet

	videoPTS int64
	audioPTS int64

	samplesPerFrame int
}

// Open builds the FLV muxer and both encoders, writes the container
// header, and returns a ready Muxer. The output byte pipe is the
// process's own stdout, addressed by astiav's "pipe:1" URL — the same
// pattern the teacher uses for file output, pointed at the standard
// output descriptor instead of a path on disk.
func Open(cfg Config) (*Muxer, error) {
	fc, err := astiav.AllocOutputFormatContext(nil, "flv", "pipe:1")
	if err != nil || fc == nil {
		return nil, fmt.Errorf("AllocOutputFormatContext: %w", err)
	}

	m := &Muxer{cfg: cfg, fc: fc}

	if err := m.openVideoEncoder(); err != nil {
		fc.Free()
		return nil, err
	}
	if err := m.openAudioEncoder(); err != nil {
		m.videoEncCtx.Free()
		fc.Free()
		return nil, err
	}

	ioFlags := astiav.NewIOContextFlags(astiav.IOContextFlagWrite)
	pb, err := astiav.OpenIOContext("pipe:1", ioFlags, nil, nil)
	if err != nil {
		m.videoEncCtx.Free()
		m.audioEncCtx.Free()
		fc.Free()
		return nil, fmt.Errorf("OpenIOContext: %w", err)
	}
	fc.SetPb(pb)
	m.io = pb

	if err := fc.WriteHeader(nil); err != nil {
		_ = pb.Close()
		pb.Free()
		m.videoEncCtx.Free()
		m.audioEncCtx.Free()
		fc.Free()
		return nil, fmt.Errorf("WriteHeader: %w", err)
	}

	m.videoPkt = astiav.AllocPacket()
	m.audioPkt = astiav.AllocPacket()

	return m, nil
}

func (m *Muxer) openVideoEncoder() error {
	codec := astiav.FindEncoder(astiav.CodecIDH264)
	if codec == nil {
		return fmt.Errorf("H264 encoder not found")
	}
	ctx := astiav.AllocCodecContext(codec)
	if ctx == nil {
		return fmt.Errorf("AllocCodecContext(video) nil")
	}

	ctx.SetWidth(m.cfg.Width)
	ctx.SetHeight(m.cfg.Height)
	ctx.SetPixelFormat(astiav.PixelFormatYuv420P)
	ctx.SetTimeBase(astiav.NewRational(1, m.cfg.FPS))
	ctx.SetFramerate(astiav.NewRational(m.cfg.FPS, 1))
	ctx.SetGopSize(m.cfg.FPS * 2)
	ctx.SetMaxBFrames(0)
	ctx.SetBitRate(int64(m.cfg.VideoBitrate))
	ctx.SetThreadCount(4)

	opts := astiav.NewDictionary()
	defer opts.Free()
	_ = opts.Set("preset", "ultrafast", 0)
	_ = opts.Set("tune", "zerolatency", 0)
	_ = opts.Set("profile", "main", 0)

	// FLV requires global (extradata-carried) headers for both tracks.
	ctx.SetFlags(astiav.CodecContextFlagGlobalHeader)

	if err := ctx.Open(codec, opts); err != nil {
		ctx.Free()
		return fmt.Errorf("open video encoder: %w", err)
	}

	st := m.fc.NewStream(nil)
	if st == nil {
		ctx.Free()
		return fmt.Errorf("NewStream(video) nil")
	}
	if err := ctx.ToCodecParameters(st.CodecParameters()); err != nil {
		ctx.Free()
		return fmt.Errorf("ToCodecParameters(video): %w", err)
	}
	st.SetTimeBase(ctx.TimeBase())

	m.videoEncCtx = ctx
	m.videoStream = st
	return nil
}

func (m *Muxer) openAudioEncoder() error {
	codec := astiav.FindEncoder(astiav.CodecIDAac)
	if codec == nil {
		return fmt.Errorf("AAC encoder not found")
	}
	ctx := astiav.AllocCodecContext(codec)
	if ctx == nil {
		return fmt.Errorf("AllocCodecContext(audio) nil")
	}

	ctx.SetSampleRate(m.cfg.SampleRate)
	ctx.SetChannelLayout(astiav.ChannelLayoutStereo)
	ctx.SetSampleFormat(astiav.SampleFormatFltp)
	ctx.SetBitRate(int64(m.cfg.AudioBitrate))
	ctx.SetTimeBase(astiav.NewRational(1, m.cfg.SampleRate))
	ctx.SetStrictStdCompliance(astiav.StrictStdComplianceExperimental)

	ctx.SetFlags(astiav.CodecContextFlagGlobalHeader)

	if err := ctx.Open(codec, nil); err != nil {
		ctx.Free()
		return fmt.Errorf("open audio encoder: %w", err)
	}

	st := m.fc.NewStream(nil)
	if st == nil {
		ctx.Free()
		return fmt.Errorf("NewStream(audio) nil")
	}
	if err := ctx.ToCodecParameters(st.CodecParameters()); err != nil {
		ctx.Free()
		return fmt.Errorf("ToCodecParameters(audio): %w", err)
	}
	st.SetTimeBase(ctx.TimeBase())

	m.audioEncCtx = ctx
	m.audioStream = st

	m.samplesPerFrame = ctx.FrameSize()
	if m.samplesPerFrame <= 0 {
		m.samplesPerFrame = 1024
	}
	return nil
}

// SamplesPerFrame returns the AAC encoder's required frame size (the
// number of samples-per-channel each EncodeAudioFrame call consumes).
func (m *Muxer) SamplesPerFrame() int {
	return m.samplesPerFrame
}

// VideoPTS returns the current video_pts counter value.
func (m *Muxer) VideoPTS() int64 { return m.videoPTS }

// AudioPTS returns the current audio_pts counter value.
func (m *Muxer) AudioPTS() int64 { return m.audioPTS }

// EncodeVideo assigns frame.pts = video_pts, increments video_pts, and
// pushes the frame through the encoder, draining and writing every
// ready packet.
func (m *Muxer) EncodeVideo(planes *slot.Planes) error {
	frame := astiav.AllocFrame()
	defer frame.Free()

	frame.SetWidth(m.cfg.Width)
	frame.SetHeight(m.cfg.Height)
	frame.SetPixelFormat(astiav.PixelFormatYuv420P)
	if err := frame.AllocBuffer(1); err != nil {
		return fmt.Errorf("EncodeVideo: AllocBuffer: %w", err)
	}

	if err := copyPlaneInto(frame, 0, planes.Y); err != nil {
		return err
	}
	if err := copyPlaneInto(frame, 1, planes.Cb); err != nil {
		return err
	}
	if err := copyPlaneInto(frame, 2, planes.Cr); err != nil {
		return err
	}

	frame.SetPts(m.videoPTS)
	m.videoPTS++

	return m.encodeAndWrite(m.videoEncCtx, m.videoStream, m.videoPkt, frame)
}

func copyPlaneInto(frame *astiav.Frame, idx int, src []byte) error {
	dst, err := frame.Data().Bytes(idx)
	if err != nil {
		return fmt.Errorf("plane %d: %w", idx, err)
	}
	copy(dst, src)
	return nil
}

// EncodeAudioFrame builds one audio frame of SamplesPerFrame() samples
// (planar float stereo) from source, per spec.md §4.6: if source has at
// least SamplesPerFrame() samples, read them in; otherwise zero-fill the
// whole frame and overlay whatever partial samples are available from
// the start. Assigns frame.pts = audio_pts, audio_pts += samples_per_frame.
func (m *Muxer) EncodeAudioFrame(source *audioqueue.Queue) error {
	n := m.samplesPerFrame

	frame := astiav.AllocFrame()
	defer frame.Free()

	frame.SetSampleFormat(astiav.SampleFormatFltp)
	frame.SetSampleRate(m.cfg.SampleRate)
	frame.SetChannelLayout(astiav.ChannelLayoutStereo)
	frame.SetNbSamples(n)
	if err := frame.AllocBuffer(0); err != nil {
		return fmt.Errorf("EncodeAudioFrame: AllocBuffer: %w", err)
	}

	have := source.Pop(n)
	for c := 0; c < audioqueue.Channels; c++ {
		plane, err := frame.Data().Bytes(c)
		if err != nil {
			return fmt.Errorf("plane %d: %w", c, err)
		}
		float32ToBytesInto(plane, have[c])
	}

	frame.SetPts(m.audioPTS)
	m.audioPTS += int64(n)

	return m.encodeAndWrite(m.audioEncCtx, m.audioStream, m.audioPkt, frame)
}

// float32ToBytesInto writes samples as little-endian float32 values into
// dst starting at offset 0, zeroing dst first so any samples short of a
// full frame leave the remainder silent. libav's buffer allocators do
// not guarantee zeroed memory, so this is an explicit memset rather than
// an assumption about AllocBuffer.
func float32ToBytesInto(dst []byte, samples []float32) {
	clear(dst)
	for i, f := range samples {
		bits := math.Float32bits(f)
		o := i * 4
		if o+4 > len(dst) {
			break
		}
		dst[o] = byte(bits)
		dst[o+1] = byte(bits >> 8)
		dst[o+2] = byte(bits >> 16)
		dst[o+3] = byte(bits >> 24)
	}
}

func (m *Muxer) encodeAndWrite(ctx *astiav.CodecContext, stream *astiav.Stream, pkt *astiav.Packet, frame *astiav.Frame) error {
	if err := ctx.SendFrame(frame); err != nil {
		return fmt.Errorf("SendFrame: %w", err)
	}
	for {
		if err := ctx.ReceivePacket(pkt); err != nil {
			if err == astiav.ErrEagain || err == astiav.ErrEof {
				break
			}
			return fmt.Errorf("ReceivePacket: %w", err)
		}
		pkt.SetStreamIndex(stream.Index())
		pkt.RescaleTs(ctx.TimeBase(), stream.TimeBase())
		if err := m.fc.WriteInterleavedFrame(pkt); err != nil {
			pkt.Unref()
			return fmt.Errorf("WriteInterleavedFrame: %w", err)
		}
		pkt.Unref()
	}
	return nil
}

// Close flushes both encoders, writes the trailer, and frees everything.
func (m *Muxer) Close() error {
	_ = m.videoEncCtx.SendFrame(nil)
	m.drainFlush(m.videoEncCtx, m.videoStream, m.videoPkt)
	_ = m.audioEncCtx.SendFrame(nil)
	m.drainFlush(m.audioEncCtx, m.audioStream, m.audioPkt)

	err := m.fc.WriteTrailer()

	m.videoPkt.Free()
	m.audioPkt.Free()
	m.videoEncCtx.Free()
	m.audioEncCtx.Free()
	if m.io != nil {
		_ = m.io.Close()
		m.io.Free()
	}
	m.fc.Free()

	if err != nil {
		return fmt.Errorf("WriteTrailer: %w", err)
	}
	return nil
}

func (m *Muxer) drainFlush(ctx *astiav.CodecContext, stream *astiav.Stream, pkt *astiav.Packet) {
	for {
		if err := ctx.ReceivePacket(pkt); err != nil {
			break
		}
		pkt.SetStreamIndex(stream.Index())
		pkt.RescaleTs(ctx.TimeBase(), stream.TimeBase())
		_ = m.fc.WriteInterleavedFrame(pkt)
		pkt.Unref()
	}
}
