package pacer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/e1z0/srtcompositor/internal/audiomachine"
	"github.com/e1z0/srtcompositor/internal/audioqueue"
	"github.com/e1z0/srtcompositor/internal/background"
	"github.com/e1z0/srtcompositor/internal/slot"
	"github.com/e1z0/srtcompositor/internal/statuslog"
)

// fakeMuxer is a bookkeeping stand-in for internal/output.Muxer: no
// libav, just counters so tests can assert on the clock invariant.
type fakeMuxer struct {
	samplesPerFrame int
	videoPTS        int64
	audioPTS        int64
	videoFrames     int
	audioFrames     []int // samples popped per EncodeAudioFrame call
}

func (m *fakeMuxer) SamplesPerFrame() int { return m.samplesPerFrame }
func (m *fakeMuxer) VideoPTS() int64      { return m.videoPTS }
func (m *fakeMuxer) AudioPTS() int64      { return m.audioPTS }

func (m *fakeMuxer) EncodeVideo(planes *slot.Planes) error {
	m.videoFrames++
	m.videoPTS++
	return nil
}

func (m *fakeMuxer) EncodeAudioFrame(source *audioqueue.Queue) error {
	n := source.Len()
	if n > m.samplesPerFrame {
		n = m.samplesPerFrame
	}
	source.Pop(m.samplesPerFrame)
	m.audioFrames = append(m.audioFrames, n)
	m.audioPTS += int64(m.samplesPerFrame)
	return nil
}

// fakeBackground never produces a video frame so tests can drive the
// Audio Machine between SRT and BG without a real background file.
type fakeBackground struct{}

func (fakeBackground) Tick(outPlanes *slot.Planes, audioQueue *audioqueue.Queue) (background.Result, error) {
	return background.None, nil
}

func newTestPacer(fps, sampleRate int) (*Pacer, *slot.Slot, *fakeMuxer) {
	sl := slot.New(16, 16, sampleRate*2)
	mux := &fakeMuxer{samplesPerFrame: sampleRate / fps}
	log := statuslog.New(discardWriter{}, "test")
	p := New(Config{FPS: fps, SampleRate: sampleRate, GraceDelay: 50 * time.Millisecond}, sl, fakeBackground{}, mux, log)
	return p, sl, mux
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func publishFrame(sl *slot.Slot) {
	sl.MarkConnected()
	sl.PublishVideo(make([]byte, 16*16), make([]byte, 8*8), make([]byte, 8*8))
}

func TestTickEncodesVideoWhenSRTConnected(t *testing.T) {
	p, sl, mux := newTestPacer(30, 48000)
	publishFrame(sl)

	require.NoError(t, p.Tick(time.Now()))
	require.Equal(t, 1, mux.videoFrames)
}

func TestTickSkipsVideoWhenNoSourceAvailable(t *testing.T) {
	p, _, mux := newTestPacer(30, 48000)

	require.NoError(t, p.Tick(time.Now()))
	require.Equal(t, 0, mux.videoFrames)
}

func TestAudioPTSNeverExceedsTargetByMoreThanOneFrame(t *testing.T) {
	p, sl, mux := newTestPacer(30, 48000)
	publishFrame(sl)

	now := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Tick(now))
		target := (mux.VideoPTS() * int64(48000)) / int64(30)
		require.LessOrEqual(t, mux.AudioPTS(), target+int64(mux.samplesPerFrame))
	}
}

func TestSRTStateDoesNotPadWithSilenceBelowOneFrame(t *testing.T) {
	p, sl, mux := newTestPacer(30, 48000)
	publishFrame(sl)

	// One tick's worth of video with no audio published: the SRT branch
	// of catchUpAudio must not manufacture a frame out of nothing.
	require.NoError(t, p.Tick(time.Now()))
	require.Empty(t, mux.audioFrames)
}

func TestEnteringGraceResetsQueuesAndEmitsSilence(t *testing.T) {
	p, sl, mux := newTestPacer(30, 48000)
	publishFrame(sl)
	sl.PublishAudio([audioqueue.Channels][]float32{make([]float32, 100), make([]float32, 100)})
	require.NoError(t, p.Tick(time.Now()))
	require.Equal(t, audiomachine.SRT, p.machine.State())
	require.Equal(t, 100, p.localSRT.Len())

	sl.MarkDisconnected()
	require.NoError(t, p.Tick(time.Now()))
	require.Equal(t, audiomachine.GRACE, p.machine.State())
	// One all-silence frame (zero queued samples used), local SRT queue emptied.
	require.Equal(t, []int{0}, mux.audioFrames)
	require.Equal(t, 0, p.localSRT.Len())
}

func TestStatsEmittedOnceEveryFPSTicks(t *testing.T) {
	p, sl, _ := newTestPacer(10, 48000)
	publishFrame(sl)

	now := time.Now()
	for i := 0; i < 9; i++ {
		require.NoError(t, p.Tick(now))
		require.EqualValues(t, i+1, p.statsWindowN)
	}
	require.NoError(t, p.Tick(now))
	require.EqualValues(t, 0, p.statsWindowN)
}
