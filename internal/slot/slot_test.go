package slot

import (
	"testing"
	"time"

	"github.com/e1z0/srtcompositor/internal/audioqueue"
	"github.com/stretchr/testify/require"
)

func TestSampleFailsUntilConnectedAndHasVideo(t *testing.T) {
	s := New(4, 2, 1024)
	dst := s.NewPlanes()
	require.False(t, s.Sample(&dst))

	s.MarkConnected()
	require.False(t, s.Sample(&dst))

	s.PublishVideo(make([]byte, 8), make([]byte, 2), make([]byte, 2))
	require.True(t, s.Sample(&dst))
}

func TestMarkDisconnectedClearsHasVideoButKeepsAudio(t *testing.T) {
	s := New(4, 2, 1024)
	s.MarkConnected()
	s.PublishVideo(make([]byte, 8), make([]byte, 2), make([]byte, 2))
	s.PublishAudio([audioqueue.Channels][]float32{{1, 2}, {1, 2}})

	s.MarkDisconnected()

	dst := s.NewPlanes()
	require.False(t, s.Sample(&dst))

	local := audioqueue.New(1024)
	s.DrainAudioInto(local)
	require.Equal(t, 2, local.Len())
}

func TestMarkConnectedResetsAudioQueue(t *testing.T) {
	s := New(4, 2, 1024)
	s.MarkConnected()
	s.PublishAudio([audioqueue.Channels][]float32{{1}, {1}})
	s.MarkConnected() // reconnect

	local := audioqueue.New(1024)
	s.DrainAudioInto(local)
	require.Equal(t, 0, local.Len())
}

func TestPublishVideoCopiesInPlace(t *testing.T) {
	s := New(2, 2, 1024)
	s.MarkConnected()
	s.PublishVideo([]byte{1, 2, 3, 4}, []byte{5}, []byte{6})

	dst := s.NewPlanes()
	require.True(t, s.Sample(&dst))
	require.Equal(t, []byte{1, 2, 3, 4}, dst.Y)
	require.Equal(t, []byte{5}, dst.Cb)
	require.Equal(t, []byte{6}, dst.Cr)
}

func TestLivenessElapsedAdvances(t *testing.T) {
	s := New(2, 2, 1024)
	s.MarkConnected()
	s.PublishVideo([]byte{1, 2, 3, 4}, []byte{5}, []byte{6})

	elapsed := s.LivenessElapsed()
	require.Less(t, elapsed, time.Second)
}

func TestResetAudioOnlyTouchesAudioQueue(t *testing.T) {
	s := New(4, 2, 1024)
	s.MarkConnected()
	s.PublishVideo(make([]byte, 8), make([]byte, 2), make([]byte, 2))
	s.PublishAudio([audioqueue.Channels][]float32{{1}, {1}})

	s.ResetAudio()

	dst := s.NewPlanes()
	require.True(t, s.Sample(&dst))
	local := audioqueue.New(1024)
	s.DrainAudioInto(local)
	require.Equal(t, 0, local.Len())
}
