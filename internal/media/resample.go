package media

import (
	"fmt"
	"math"

	astiav "github.com/asticode/go-astiav"

	"github.com/e1z0/srtcompositor/internal/audioqueue"
)

// Resampler converts decoded audio frames of varying source sample
// format/rate/layout into planar float stereo at the fixed output
// sample rate. If the source has no declared channel layout, stereo is
// assumed, per the reader's channel-layout fallback rule.
type Resampler struct {
	swr        *astiav.SoftwareResampleContext
	dst        *astiav.Frame
	sampleRate int
}

// NewResampler returns a resampler targeting the given output sample
// rate, planar float, stereo.
func NewResampler(sampleRate int) *Resampler {
	return &Resampler{
		swr:        astiav.AllocSoftwareResampleContext(),
		sampleRate: sampleRate,
	}
}

// Close releases the resample context and scratch frame.
func (r *Resampler) Close() {
	if r.dst != nil {
		r.dst.Free()
		r.dst = nil
	}
	if r.swr != nil {
		r.swr.Free()
		r.swr = nil
	}
}

// Convert resamples src into planar float32 stereo samples.
func (r *Resampler) Convert(src *astiav.Frame) (planes [audioqueue.Channels][]float32, err error) {
	if src.ChannelLayout().String() == "" {
		src.SetChannelLayout(astiav.ChannelLayoutStereo)
	}

	out := astiav.AllocFrame()
	defer out.Free()
	out.SetSampleFormat(astiav.SampleFormatFltp)
	out.SetSampleRate(r.sampleRate)
	out.SetChannelLayout(astiav.ChannelLayoutStereo)
	out.SetNbSamples(src.NbSamples())

	if err := out.AllocBuffer(0); err != nil {
		return planes, fmt.Errorf("resampler AllocBuffer: %w", err)
	}
	if err := r.swr.ConvertFrame(src, out); err != nil {
		return planes, fmt.Errorf("ConvertFrame: %w", err)
	}

	n := out.NbSamples()
	for c := 0; c < audioqueue.Channels; c++ {
		b, err := out.Data().Bytes(c)
		if err != nil {
			return planes, fmt.Errorf("plane %d: %w", c, err)
		}
		planes[c] = bytesToFloat32(b, n)
	}
	return planes, nil
}

// bytesToFloat32 reinterprets a little-endian float32 byte plane (as
// produced by libav's planar float sample format) as a float32 slice of
// length n, copying so the result outlives the source frame's buffer.
func bytesToFloat32(b []byte, n int) []float32 {
	if n*4 > len(b) {
		n = len(b) / 4
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// float32ToBytes is the inverse of bytesToFloat32. Nothing in the module
// calls it; internal/output fills encoder input frames with its own
// float32ToBytesInto.
func float32ToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, f := range samples {
		bits := math.Float32bits(f)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}
