// SPDX-License-Identifier: GPL-3.0-or-later

// Package types holds the data types shared across the engine's internal
// packages: media type identifiers, stream time-base rationals, the
// stream-specifier grammar, and the sentinel errors of the error handling
// design.
package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MediaType identifies the kind of data a stream or component carries.
type MediaType int

const (
	MediaTypeUnknown MediaType = iota
	MediaTypeAudio
	MediaTypeVideo
	MediaTypeSubtitle
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeAudio:
		return "audio"
	case MediaTypeVideo:
		return "video"
	case MediaTypeSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// TimeBase is a rational num/den in seconds, as reported by the demuxer or
// codec for a given stream.
type TimeBase struct {
	Num int
	Den int
}

// Ticks converts a duration expressed in this time base's units into the
// engine's internal monotonic 100-ns tick scale.
func (tb TimeBase) Ticks(units int64) int64 {
	if tb.Den == 0 {
		return 0
	}
	// ticks = units * num/den * 10_000_000
	return units * int64(tb.Num) * 10_000_000 / int64(tb.Den)
}

// Units converts engine ticks back into this time base's units.
func (tb TimeBase) Units(ticks int64) int64 {
	if tb.Num == 0 {
		return 0
	}
	return ticks * int64(tb.Den) / (int64(tb.Num) * 10_000_000)
}

// TicksPerSecond is the number of engine ticks in one second; the engine's
// canonical monotonic tick is 100ns, matching the normalised internal scale
// described in the data model.
const TicksPerSecond = 10_000_000

// Error kinds from the error handling design. Use errors.Is to test for
// these; the concrete errors returned always wrap one of these sentinels.
var (
	ErrOpenFailed      = errors.New("media: open failed")
	ErrDecoderNotFound = errors.New("media: decoder not found")
	ErrCodecOpenFailed = errors.New("media: codec open failed")
	ErrReadFailed      = errors.New("media: read failed")
	ErrSeekFailed      = errors.New("media: seek failed")
	ErrConvertFailed   = errors.New("media: convert failed")
	ErrDisposed        = errors.New("media: engine disposed")
	ErrCancelled       = errors.New("media: command cancelled")
)

// Wrap annotates a sentinel error with context while preserving errors.Is.
func Wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}

// StreamSpecifier is a parsed textual stream token: "<index>", "<type>",
// "<type>:<index>", or empty (matches anything).
type StreamSpecifier struct {
	HasType  bool
	Type     MediaType
	HasIndex bool
	Index    int
}

// ParseStreamSpecifier parses the stream specifier grammar of §6.
func ParseStreamSpecifier(s string) (StreamSpecifier, error) {
	var spec StreamSpecifier
	s = strings.TrimSpace(s)
	if s == "" {
		return spec, nil
	}

	parts := strings.SplitN(s, ":", 2)
	typeToken := ""
	indexToken := ""

	switch len(parts) {
	case 1:
		if isTypeChar(parts[0]) {
			typeToken = parts[0]
		} else {
			indexToken = parts[0]
		}
	case 2:
		typeToken = parts[0]
		indexToken = parts[1]
	}

	if typeToken != "" {
		mt, err := parseTypeChar(typeToken)
		if err != nil {
			return spec, err
		}
		spec.HasType = true
		spec.Type = mt
	}

	if indexToken != "" {
		idx, err := strconv.Atoi(indexToken)
		if err != nil {
			return spec, fmt.Errorf("stream specifier %q: bad index: %w", s, err)
		}
		spec.HasIndex = true
		spec.Index = idx
	}

	return spec, nil
}

func isTypeChar(s string) bool {
	return s == "a" || s == "v" || s == "s"
}

func parseTypeChar(s string) (MediaType, error) {
	switch s {
	case "a":
		return MediaTypeAudio, nil
	case "v":
		return MediaTypeVideo, nil
	case "s":
		return MediaTypeSubtitle, nil
	default:
		return MediaTypeUnknown, fmt.Errorf("stream specifier: unknown type char %q", s)
	}
}

// Matches reports whether the specifier matches a stream of the given type
// and index. An empty specifier matches everything.
func (s StreamSpecifier) Matches(mt MediaType, index int) bool {
	if s.HasType && s.Type != mt {
		return false
	}
	if s.HasIndex && s.Index != index {
		return false
	}
	return true
}
