package media

import (
	"fmt"

	astiav "github.com/asticode/go-astiav"

	"github.com/e1z0/srtcompositor/internal/slot"
)

// Scaler converts decoded frames of varying source size/pixel format into
// the fixed output resolution, planar 4:2:0 8-bit. It is lazily
// (re-)configured on the first frame, and again whenever the source
// geometry changes — mirroring the decode-side reality that an inbound
// session can renegotiate resolution mid-stream.
type Scaler struct {
	ssc  *astiav.SoftwareScaleContext
	dst  *astiav.Frame
	dstW, dstH int

	srcW, srcH int
	srcPix     astiav.PixelFormat
}

// NewScaler returns a scaler targeting dstW x dstH YUV420P.
func NewScaler(dstW, dstH int) *Scaler {
	return &Scaler{dstW: dstW, dstH: dstH}
}

// Close releases the scale context and destination frame.
func (s *Scaler) Close() {
	if s.dst != nil {
		s.dst.Free()
		s.dst = nil
	}
	if s.ssc != nil {
		s.ssc.Free()
		s.ssc = nil
	}
}

func (s *Scaler) ensure(src *astiav.Frame) error {
	sw, sh := src.Width(), src.Height()
	sp := src.PixelFormat()

	if s.ssc != nil && sw == s.srcW && sh == s.srcH && sp == s.srcPix {
		return nil
	}
	s.Close()

	flags := astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear)
	ssc, err := astiav.CreateSoftwareScaleContext(
		sw, sh, sp,
		s.dstW, s.dstH, astiav.PixelFormatYuv420P,
		flags,
	)
	if err != nil {
		return fmt.Errorf("CreateSoftwareScaleContext(%dx%d %v -> yuv420p): %w", sw, sh, sp, err)
	}

	dst := astiav.AllocFrame()
	dst.SetWidth(s.dstW)
	dst.SetHeight(s.dstH)
	dst.SetPixelFormat(astiav.PixelFormatYuv420P)
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		ssc.Free()
		return fmt.Errorf("dst.AllocBuffer: %w", err)
	}

	s.ssc = ssc
	s.dst = dst
	s.srcW, s.srcH, s.srcPix = sw, sh, sp
	return nil
}

// ScaleTo scales src into the fixed-size output planes. out must already
// be sized to the scaler's destination resolution.
func (s *Scaler) ScaleTo(src *astiav.Frame, out *slot.Planes) error {
	if err := s.ensure(src); err != nil {
		return err
	}
	if err := s.ssc.ScaleFrame(src, s.dst); err != nil {
		return fmt.Errorf("ScaleFrame: %w", err)
	}

	y, err := s.dst.Data().Bytes(0)
	if err != nil {
		return fmt.Errorf("y plane: %w", err)
	}
	cb, err := s.dst.Data().Bytes(1)
	if err != nil {
		return fmt.Errorf("cb plane: %w", err)
	}
	cr, err := s.dst.Data().Bytes(2)
	if err != nil {
		return fmt.Errorf("cr plane: %w", err)
	}
	copy(out.Y, y)
	copy(out.Cb, cb)
	copy(out.Cr, cr)
	return nil
}
