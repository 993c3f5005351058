// SPDX-License-Identifier: GPL-3.0-or-later

// Command mediaengine-cli is a headless demo host for the media engine: it
// opens a source, plays it against Null or Printer renderers, prints the
// engine's event stream, and exits with the status codes of §6.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mediacore/engine/engine"
	"github.com/mediacore/engine/internal/corelog"
	"github.com/mediacore/engine/internal/types"
	"github.com/mediacore/engine/renderer"
)

const (
	exitOK           = 0
	exitUsage        = 2
	exitOpenFailed   = 3
	exitDecodeFailed = 4
	exitSeekFailed   = 5
	exitCancelled    = 6
)

func main() {
	os.Exit(run())
}

func run() int {
	optionsPath := flag.String("options", "", "optional YAML options file")
	seekTo := flag.Duration("seek", 0, "seek to this position after the initial playback window")
	playFor := flag.Duration("for", 5*time.Second, "how long to play before stopping")
	quiet := flag.Bool("quiet", false, "suppress per-block renderer output")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: mediaengine-cli [flags] <source>")
		return exitUsage
	}
	source := flag.Arg(0)

	opts := engine.DefaultOptions()
	if *optionsPath != "" {
		loaded, err := engine.LoadOptionsFile(*optionsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mediaengine-cli: load options: %v\n", err)
			return exitUsage
		}
		opts = loaded
	}

	renderers := map[string]renderer.Renderer{
		"video":    pick(*quiet, "video"),
		"audio":    pick(*quiet, "audio"),
		"subtitle": pick(*quiet, "subtitle"),
	}

	e := engine.New(nil, opts, renderers)
	defer e.Shutdown()

	events, unsubscribe := e.Subscribe(32)
	defer unsubscribe()
	go logEvents(events)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Open(source).Wait(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "mediaengine-cli: open: %v\n", err)
		return exitFor(err, exitOpenFailed)
	}

	e.Play()
	time.Sleep(*playFor)

	if *seekTo > 0 {
		ticks := int64(*seekTo / 100)
		if err := e.Seek(ticks).Wait(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "mediaengine-cli: seek: %v\n", err)
			return exitFor(err, exitSeekFailed)
		}
		time.Sleep(*playFor)
	}

	if err := e.Stop().Wait(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "mediaengine-cli: stop: %v\n", err)
		return exitFor(err, exitDecodeFailed)
	}
	if err := e.Close().Wait(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "mediaengine-cli: close: %v\n", err)
		return exitFor(err, exitDecodeFailed)
	}
	return exitOK
}

// exitFor reports exitCancelled whenever the overall context deadline or an
// explicit Close-triggered cancellation is why a command failed, rather than
// the stage-specific fallback code.
func exitFor(err error, fallback int) int {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, types.ErrCancelled) {
		return exitCancelled
	}
	return fallback
}

func pick(quiet bool, label string) renderer.Renderer {
	if quiet {
		return renderer.Null{}
	}
	return renderer.Printer{Label: label}
}

func logEvents(events <-chan engine.Event) {
	for ev := range events {
		switch ev.Kind {
		case engine.EventLogMessage:
			fmt.Fprintf(os.Stderr, "[%s] %s\n", levelName(ev.LogLevel), ev.Text)
		case engine.EventMediaOpening:
			fmt.Println("opening...")
		case engine.EventMediaOpened:
			fmt.Println("opened")
		case engine.EventMediaEnded:
			fmt.Println("ended")
		case engine.EventPositionChanged:
			fmt.Printf("position changed %d -> %d\n", ev.OldPosition, ev.NewPosition)
		}
	}
}

func levelName(l corelog.Level) string {
	switch l {
	case corelog.LevelError:
		return "error"
	case corelog.LevelWarning:
		return "warn"
	case corelog.LevelInfo:
		return "info"
	case corelog.LevelDebug:
		return "debug"
	case corelog.LevelTrace:
		return "trace"
	default:
		return "unknown"
	}
}
