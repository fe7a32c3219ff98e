// Package pacer implements the Pacing Encoder Loop (spec.md §4.5): the
// master clock. Every tick it pulls the background source, samples the
// Shared Frame Slot, advances the Audio Source Machine, encodes one
// video frame and enough audio to catch the audio clock up to the video
// clock, and sleeps to the frame deadline.
package pacer

import (
	"context"
	"fmt"
	"time"

	"github.com/e1z0/srtcompositor/internal/audiomachine"
	"github.com/e1z0/srtcompositor/internal/audioqueue"
	"github.com/e1z0/srtcompositor/internal/background"
	"github.com/e1z0/srtcompositor/internal/slot"
	"github.com/e1z0/srtcompositor/internal/statuslog"
)

// Muxer is the subset of internal/output.Muxer the Pacing Loop drives.
// Abstracted so tests can exercise the tick algorithm without linking
// libav.
type Muxer interface {
	EncodeVideo(planes *slot.Planes) error
	EncodeAudioFrame(source *audioqueue.Queue) error
	SamplesPerFrame() int
	VideoPTS() int64
	AudioPTS() int64
}

// Background is the subset of internal/background.Source the Pacing
// Loop drives.
type Background interface {
	Tick(outPlanes *slot.Planes, audioQueue *audioqueue.Queue) (background.Result, error)
}

// Config holds the Pacing Loop's fixed parameters.
type Config struct {
	FPS        int
	SampleRate int
	GraceDelay time.Duration
}

// localSRTMaxSamples is the 300ms cap on the Local SRT Queue (spec.md
// §3/§4.4), expressed as a sample count once SampleRate is known.
func localSRTMaxSamples(sampleRate int) int {
	return sampleRate * 300 / 1000
}

// Pacer is the suture.Service driving the tick loop.
type Pacer struct {
	cfg Config

	slot *slot.Slot
	bg   Background
	mux  Muxer
	log  *statuslog.Log

	machine *audiomachine.Machine

	localSRT *audioqueue.Queue
	bgAudio  *audioqueue.Queue

	videoFrame slot.Planes
	bgFrame    slot.Planes

	lastUseSRTVideo bool
	firstTick       bool
	statsWindowN    int64
	statsWindowAt   time.Time
}

// New builds a Pacer. sl supplies the fixed output dimensions that size
// the scratch video-frame buffers.
func New(cfg Config, sl *slot.Slot, bg Background, mux Muxer, log *statuslog.Log) *Pacer {
	return &Pacer{
		cfg:        cfg,
		slot:       sl,
		bg:         bg,
		mux:        mux,
		log:        log,
		machine:    audiomachine.New(cfg.GraceDelay),
		localSRT:   audioqueue.New(cfg.SampleRate * 2),
		bgAudio:    audioqueue.New(cfg.SampleRate * 2),
		videoFrame: sl.NewPlanes(),
		bgFrame:    sl.NewPlanes(),
		firstTick:  true,
	}
}

// Serve runs the tick loop until ctx is canceled, matching the
// suture.Service contract.
func (p *Pacer) Serve(ctx context.Context) error {
	p.log.Running()
	p.statsWindowAt = time.Now()
	period := time.Second / time.Duration(p.cfg.FPS)

	for {
		if ctx.Err() != nil {
			p.log.Stopped()
			return ctx.Err()
		}

		t0 := time.Now()
		if err := p.Tick(t0); err != nil {
			// Downstream write errors are best-effort; the loop keeps
			// ticking regardless (spec.md §7).
			p.log.Error(err.Error())
		}

		elapsed := time.Since(t0)
		sleepFor := period - elapsed
		if sleepFor > time.Millisecond {
			select {
			case <-ctx.Done():
				p.log.Stopped()
				return ctx.Err()
			case <-time.After(sleepFor):
			}
		}
	}
}

// Tick runs one full tick of the algorithm in spec.md §4.5, steps 2-8
// (step 1, t0, and step 9, the deadline sleep, live in Serve).
func (p *Pacer) Tick(now time.Time) error {
	haveBgFrame := p.pullBackground()

	useSRTVideo := p.slot.Sample(&p.videoFrame)

	p.advanceAudioMachine(useSRTVideo, now)
	p.logVideoSourceEdge(useSRTVideo)

	var firstErr error
	if useSRTVideo {
		if err := p.mux.EncodeVideo(&p.videoFrame); err != nil {
			firstErr = fmt.Errorf("encode video (srt): %w", err)
		}
	} else if haveBgFrame {
		if err := p.mux.EncodeVideo(&p.bgFrame); err != nil {
			firstErr = fmt.Errorf("encode video (bg): %w", err)
		}
	}

	if err := p.catchUpAudio(); err != nil && firstErr == nil {
		firstErr = err
	}

	p.emitStats(now)
	p.firstTick = false

	return firstErr
}

// pullBackground performs step 2: pull up to 5 background packets until
// a video frame is produced, collecting any audio frames along the way.
func (p *Pacer) pullBackground() (haveBgFrame bool) {
	for i := 0; i < 5; i++ {
		res, err := p.bg.Tick(&p.bgFrame, p.bgAudio)
		if err != nil {
			break
		}
		if res == background.VideoProduced {
			haveBgFrame = true
			break
		}
	}
	return haveBgFrame
}

func (p *Pacer) advanceAudioMachine(useSRTVideo bool, now time.Time) {
	switch p.machine.Advance(useSRTVideo, now) {
	case audiomachine.EnteredSRT:
		p.bgAudio.Reset()
		p.log.SRTActive()
	case audiomachine.EnteredGrace:
		p.log.SRTGrace()
	case audiomachine.EnteredBG:
		p.log.BGAudioOn()
	}
}

func (p *Pacer) logVideoSourceEdge(useSRTVideo bool) {
	if p.firstTick || useSRTVideo != p.lastUseSRTVideo {
		if useSRTVideo {
			p.log.VideoSRT()
		} else {
			p.log.VideoBG()
		}
	}
	p.lastUseSRTVideo = useSRTVideo
}

// catchUpAudio performs step 7: encode audio frames until audio_pts
// catches up to target_audio_pts, per the current Audio Machine state's
// semantics. The SRT state's "whole frames only" rule can end this loop
// early, deferring the remainder to the next tick.
func (p *Pacer) catchUpAudio() error {
	samplesPerFrame := p.mux.SamplesPerFrame()
	targetAudioPTS := (p.mux.VideoPTS() * int64(p.cfg.SampleRate)) / int64(p.cfg.FPS)

	var firstErr error
audioLoop:
	for p.mux.AudioPTS() < targetAudioPTS {
		switch p.machine.State() {
		case audiomachine.SRT:
			p.slot.DrainAudioInto(p.localSRT)
			p.localSRT.TrimToMax(localSRTMaxSamples(p.cfg.SampleRate))
			if p.localSRT.Len() < samplesPerFrame {
				// Not a full frame's worth yet: stop encoding audio this
				// tick and let samples accumulate. Do not pad with
				// silence (spec.md §4.4 SRT state).
				break audioLoop
			}
			if err := p.mux.EncodeAudioFrame(p.localSRT); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("encode audio (srt): %w", err)
			}

		case audiomachine.GRACE:
			silence := audioqueue.New(0)
			if err := p.mux.EncodeAudioFrame(silence); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("encode audio (grace): %w", err)
			}
			p.localSRT.Reset()
			p.slot.ResetAudio()

		case audiomachine.BG:
			if err := p.mux.EncodeAudioFrame(p.bgAudio); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("encode audio (bg): %w", err)
			}
		}
	}
	return firstErr
}

func (p *Pacer) emitStats(now time.Time) {
	p.statsWindowN++
	if p.statsWindowN < int64(p.cfg.FPS) {
		return
	}
	elapsed := now.Sub(p.statsWindowAt).Seconds()
	fps := float64(p.statsWindowN)
	if elapsed > 0 {
		fps = fps / elapsed
	}
	p.log.Stats(fps, p.slot.Connected(), p.machine.State().String())
	p.statsWindowN = 0
	p.statsWindowAt = now
}
