package inbound

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/e1z0/srtcompositor/internal/slot"
	"github.com/e1z0/srtcompositor/internal/statuslog"
)

func newTestReader(backoff time.Duration) *Reader {
	return New(Config{
		URL:          "srt://unreachable.invalid:1234",
		OutWidth:     64,
		OutHeight:    64,
		SampleRate:   48000,
		LossTimeout:  2 * time.Second,
		RetryBackoff: backoff,
	}, slot.New(64, 64, 4096), statuslog.New(discardWriter{}, "test"))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestSleepBackoffCompletesAfterFullDuration(t *testing.T) {
	r := newTestReader(50 * time.Millisecond)
	start := time.Now()
	ok := r.sleepBackoff(context.Background())
	require.True(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestSleepBackoffAbortsOnContextCancel(t *testing.T) {
	r := newTestReader(2 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() { done <- r.sleepBackoff(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("sleepBackoff did not observe cancellation within a slice")
	}
}

func TestServeReturnsImmediatelyIfContextAlreadyCanceled(t *testing.T) {
	r := newTestReader(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Serve(ctx)
	require.Error(t, err)
}
