// Command srtcompositor runs the SRT-to-FLV live compositor: an
// always-on inbound reader, a local background loop, and a pacing
// encoder loop muxing H.264/AAC into an FLV stream on stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"

	astiav "github.com/asticode/go-astiav"
	"github.com/thejerf/suture/v4"

	"github.com/e1z0/srtcompositor/internal/background"
	"github.com/e1z0/srtcompositor/internal/config"
	"github.com/e1z0/srtcompositor/internal/inbound"
	"github.com/e1z0/srtcompositor/internal/output"
	"github.com/e1z0/srtcompositor/internal/pacer"
	"github.com/e1z0/srtcompositor/internal/slot"
	"github.com/e1z0/srtcompositor/internal/statuslog"
)

var version string
var build string

func main() {
	configPath := flag.String("config", "", "path to a JSON configuration file")
	debugStreams := flag.Bool("debugstreams", false, "enable libav debug logging")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("starting srtcompositor v%s (build: %s)", version, build)

	if *debugStreams {
		astiav.SetLogLevel(astiav.LogLevelDebug)
		astiav.SetLogCallback(func(c astiav.Classer, l astiav.LogLevel, fmt, msg string) {
			var cs string
			if c != nil {
				if cl := c.Class(); cl != nil {
					cs = " - class: " + cl.String()
				}
			}
			log.Printf("ffmpeg log: %s%s - level: %d", strings.TrimSpace(msg), cs, l)
		})
	}

	cfg, err := loadConfig(*configPath, flag.Args())
	if err != nil {
		// No stream_id is known yet when configuration fails to load.
		statuslog.NewStderr("").Error(err.Error())
		os.Exit(1)
	}

	statusLog := statuslog.NewStderr(cfg.StreamID)
	statusLog.Started()

	bg, err := background.Open(cfg.BGFile, cfg.OutWidth, cfg.OutHeight, cfg.SampleRate)
	if err != nil {
		statusLog.Error(err.Error())
		os.Exit(1)
	}
	defer bg.Close()
	statusLog.BGOpened()

	mux, err := output.Open(output.Config{
		Width:        cfg.OutWidth,
		Height:       cfg.OutHeight,
		FPS:          cfg.OutFPS,
		VideoBitrate: cfg.VideoBitrate,
		AudioBitrate: cfg.AudioBitrate,
		SampleRate:   cfg.SampleRate,
	})
	if err != nil {
		statusLog.Error(err.Error())
		os.Exit(1)
	}
	defer mux.Close()
	statusLog.OutputReady(resolutionString(cfg.OutWidth, cfg.OutHeight), cfg.OutFPS, cfg.VideoBitrate, cfg.AudioBitrate)

	// Audio queue capacity floor: 2s of samples per channel, enough to
	// absorb the Local SRT Queue's 300ms cap plus burst jitter.
	sharedSlot := slot.New(cfg.OutWidth, cfg.OutHeight, cfg.SampleRate*2)

	reader := inbound.New(inbound.Config{
		URL:          cfg.SRTURL,
		OutWidth:     cfg.OutWidth,
		OutHeight:    cfg.OutHeight,
		SampleRate:   cfg.SampleRate,
		LossTimeout:  cfg.SRTTimeout,
		RetryBackoff: cfg.SRTRetryBackoff,
	}, sharedSlot, statusLog)

	pace := pacer.New(pacer.Config{
		FPS:        cfg.OutFPS,
		SampleRate: cfg.SampleRate,
		GraceDelay: cfg.BGUnmuteDelay(),
	}, sharedSlot, bg, mux, statusLog)

	sup := suture.NewSimple("srtcompositor")
	sup.Add(reader)
	sup.Add(pace)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_ = sup.Serve(ctx)

	statusLog.Done()
}

func resolutionString(w, h int) string {
	return strconv.Itoa(w) + "x" + strconv.Itoa(h)
}

// loadConfig resolves configuration from either -config <path> or the
// legacy positional form `<srt_url> [<bg_file>]`, matching the original
// tool's argument handling for users who haven't migrated to a config
// file yet.
func loadConfig(path string, positional []string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if len(positional) == 0 {
		return config.Config{}, errors.New("usage: srtcompositor -config <path> | <srt_url> [<bg_file>]")
	}
	bgFile := ""
	if len(positional) > 1 {
		bgFile = positional[1]
	}
	return config.FromLegacyArgs(positional[0], bgFile)
}
