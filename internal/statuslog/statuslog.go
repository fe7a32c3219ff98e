// Package statuslog emits the system's newline-delimited JSON status
// events to stderr. Every event carries event, ts (seconds since epoch),
// and stream_id, plus whatever event-specific fields the event defines —
// this is a literal transcription of spec.md §6's event table onto
// zerolog's structured-logging API.
package statuslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log emits status events for one stream.
type Log struct {
	logger zerolog.Logger
}

// New builds a Log writing NDJSON to w (stderr in production), tagging
// every event with stream_id.
func New(w io.Writer, streamID string) *Log {
	l := zerolog.New(w).With().
		Str("stream_id", streamID).
		Timestamp().
		Logger()
	return &Log{logger: l}
}

// NewStderr is the production constructor.
func NewStderr(streamID string) *Log {
	return New(os.Stderr, streamID)
}

func (l *Log) event(name string) *zerolog.Event {
	return l.logger.Log().Str("event", name).Int64("ts", time.Now().Unix())
}

// Started — process start.
func (l *Log) Started() { l.event("started").Send() }

// BGOpened — background opened.
func (l *Log) BGOpened() { l.event("bg_opened").Send() }

// SRTConnected — inbound open succeeded.
func (l *Log) SRTConnected(resolution string) {
	l.event("srt_connected").Str("resolution", resolution).Send()
}

// SRTConnectFailed — inbound open failed.
func (l *Log) SRTConnectFailed(message string) {
	l.event("srt_connect_failed").Str("message", message).Send()
}

// DropReason identifies why an inbound session was closed.
type DropReason string

const (
	DropReadError DropReason = "read_error"
	DropTimeout   DropReason = "timeout"
)

// SRTDropped — session closed.
func (l *Log) SRTDropped(reason DropReason) {
	l.event("srt_dropped").Str("reason", string(reason)).Send()
}

// SRTActive — audio machine entered SRT.
func (l *Log) SRTActive() { l.event("srt_active").Send() }

// SRTGrace — audio machine entered GRACE.
func (l *Log) SRTGrace() { l.event("srt_grace").Send() }

// BGAudioOn — audio machine entered BG.
func (l *Log) BGAudioOn() { l.event("bg_audio_on").Send() }

// VideoSRT — video source switched to inbound.
func (l *Log) VideoSRT() { l.event("video_srt").Send() }

// VideoBG — video source switched to background.
func (l *Log) VideoBG() { l.event("video_bg").Send() }

// OutputReady — muxer initialized.
func (l *Log) OutputReady(resolution string, fps int, vbr, abr int) {
	l.event("output_ready").
		Str("resolution", resolution).
		Int("fps", fps).
		Int("vbr", vbr).
		Int("abr", abr).
		Send()
}

// Running — pacing loop begins.
func (l *Log) Running() { l.event("running").Send() }

// Stats — ~once per second.
func (l *Log) Stats(fps float64, srtConnected bool, audioMode string) {
	l.event("stats").
		Float64("fps", fps).
		Bool("srt_connected", srtConnected).
		Str("audio_mode", audioMode).
		Send()
}

// Stopped — pacing loop exited.
func (l *Log) Stopped() { l.event("stopped").Send() }

// Done — process exited.
func (l *Log) Done() { l.event("done").Send() }

// Error — a fatal startup error, or a non-fatal tick error reported by
// the Pacing Loop, which keeps ticking after it.
func (l *Log) Error(message string) {
	l.event("error").Str("message", message).Send()
}
