package audiomachine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInitialStateIsBG(t *testing.T) {
	m := New(5 * time.Second)
	require.Equal(t, BG, m.State())
}

func TestBGToSRTOnUseSRTVideoTrue(t *testing.T) {
	m := New(5 * time.Second)
	edge := m.Advance(true, time.Now())
	require.Equal(t, EnteredSRT, edge)
	require.Equal(t, SRT, m.State())
}

func TestSRTStaysWhileVideoRemainsTrue(t *testing.T) {
	m := New(5 * time.Second)
	m.Advance(true, time.Now())
	edge := m.Advance(true, time.Now())
	require.Equal(t, NoEdge, edge)
	require.Equal(t, SRT, m.State())
}

func TestSRTToGraceOnLoss(t *testing.T) {
	m := New(5 * time.Second)
	m.Advance(true, time.Now())
	edge := m.Advance(false, time.Now())
	require.Equal(t, EnteredGrace, edge)
	require.Equal(t, GRACE, m.State())
}

func TestGraceToBGAfterGracePeriod(t *testing.T) {
	m := New(1 * time.Second)
	t0 := time.Now()
	m.Advance(true, t0)
	m.Advance(false, t0) // -> GRACE, dropTime = t0

	// before grace elapses, stays in GRACE
	edge := m.Advance(false, t0.Add(500*time.Millisecond))
	require.Equal(t, NoEdge, edge)
	require.Equal(t, GRACE, m.State())

	// after grace elapses, flips to BG
	edge = m.Advance(false, t0.Add(2*time.Second))
	require.Equal(t, EnteredBG, edge)
	require.Equal(t, BG, m.State())
}

func TestGraceBackToSRTIfVideoReturnsBeforeGraceExpires(t *testing.T) {
	m := New(5 * time.Second)
	t0 := time.Now()
	m.Advance(true, t0)
	m.Advance(false, t0) // -> GRACE

	edge := m.Advance(true, t0.Add(time.Second))
	require.Equal(t, EnteredSRT, edge)
	require.Equal(t, SRT, m.State())
}

func TestFlappingNeverReachesBG(t *testing.T) {
	m := New(5 * time.Second)
	t0 := time.Now()
	m.Advance(true, t0)
	for i := 0; i < 20; i++ {
		t := t0.Add(time.Duration(i) * time.Second)
		m.Advance(i%2 == 0, t)
	}
	require.NotEqual(t, BG, m.State())
}

func TestBGStaysBGWhileVideoRemainsFalse(t *testing.T) {
	m := New(5 * time.Second)
	edge := m.Advance(false, time.Now())
	require.Equal(t, NoEdge, edge)
	require.Equal(t, BG, m.State())
}
