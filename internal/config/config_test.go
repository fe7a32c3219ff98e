package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultsMatchSpecTable(t *testing.T) {
	d := Defaults()
	require.Equal(t, "background.mp4", d.BGFile)
	require.Equal(t, 1280, d.OutWidth)
	require.Equal(t, 720, d.OutHeight)
	require.Equal(t, 30, d.OutFPS)
	require.Equal(t, 4_000_000, d.VideoBitrate)
	require.Equal(t, 128_000, d.AudioBitrate)
	require.Equal(t, 48_000, d.SampleRate)
	require.InDelta(t, 5.0, d.BGUnmuteDelaySeconds, 1e-9)
	require.Equal(t, 2, d.OutChannels)
}

func TestValidateRequiresSRTURL(t *testing.T) {
	cfg := Defaults()
	require.Error(t, cfg.Validate())

	cfg.SRTURL = "srt://host:1234"
	require.NoError(t, cfg.Validate())
}

func TestLoadOverlaysJSONOnDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"srt_url": "srt://example:9000",
		"out_fps": 25,
		"unused_future_key": "ignored"
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "srt://example:9000", cfg.SRTURL)
	require.Equal(t, 25, cfg.OutFPS)
	// untouched keys keep their defaults
	require.Equal(t, 1280, cfg.OutWidth)
	require.Equal(t, "background.mp4", cfg.BGFile)
}

func TestLoadMissingSRTURLFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"out_fps": 25}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestFromLegacyArgs(t *testing.T) {
	cfg, err := FromLegacyArgs("srt://x", "")
	require.NoError(t, err)
	require.Equal(t, "background.mp4", cfg.BGFile)

	cfg, err = FromLegacyArgs("srt://x", "other.mp4")
	require.NoError(t, err)
	require.Equal(t, "other.mp4", cfg.BGFile)
}

func TestBGUnmuteDelayConvertsSecondsToDuration(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, 5_000_000_000, int(cfg.BGUnmuteDelay()))
}
