// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"os"

	"gopkg.in/yaml.v2"

	"github.com/mediacore/engine/internal/native"
	"github.com/mediacore/engine/internal/types"
)

// Options configures an Engine, mirroring the configuration group of §6.
type Options struct {
	ForcedInputFormat string            `yaml:"forced_input_format,omitempty"`
	FormatOptions     map[string]string `yaml:"format_options,omitempty"`
	CodecOptions      map[string]string `yaml:"codec_options,omitempty"`
	GeneratePTS       bool              `yaml:"generate_pts,omitempty"`
	EnableLowRes      bool              `yaml:"enable_low_res,omitempty"`
	EnableFastDecoding bool             `yaml:"enable_fast_decoding,omitempty"`
	VideoFilterGraph  string            `yaml:"video_filter_graph,omitempty"`

	IsAudioDisabled    bool `yaml:"is_audio_disabled,omitempty"`
	IsVideoDisabled    bool `yaml:"is_video_disabled,omitempty"`
	IsSubtitleDisabled bool `yaml:"is_subtitle_disabled,omitempty"`

	AudioStreamSpec    string `yaml:"audio_stream,omitempty"`
	VideoStreamSpec    string `yaml:"video_stream,omitempty"`
	SubtitleStreamSpec string `yaml:"subtitle_stream,omitempty"`

	AudioChannelCount   int    `yaml:"audio_channel_count,omitempty"`
	AudioSampleRate     int    `yaml:"audio_sample_rate,omitempty"`
	AudioSampleFormat   string `yaml:"audio_sample_format,omitempty"`
	AudioBufferPadding  int    `yaml:"audio_buffer_padding,omitempty"`

	BlockCapacity int `yaml:"block_capacity,omitempty"`

	LogLevel string `yaml:"log_level,omitempty"`
}

// DefaultOptions returns engine defaults matching §6's enumerated defaults.
func DefaultOptions() Options {
	return Options{
		AudioChannelCount: 2,
		AudioSampleRate:   48000,
		AudioSampleFormat: "s16",
		BlockCapacity:     64,
		LogLevel:          "info",
	}
}

// LoadOptionsFile reads a YAML options file, following the same
// gopkg.in/yaml.v2-based AppConfig loading pattern used elsewhere.
func LoadOptionsFile(path string) (Options, error) {
	opts := DefaultOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, err
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, err
	}
	return opts, nil
}

func (o Options) nativeOpen() native.OpenOptions {
	return native.OpenOptions{
		InputFormat:   o.ForcedInputFormat,
		FormatOptions: o.FormatOptions,
		GeneratePTS:   o.GeneratePTS,
	}
}

func (o Options) nativeComponent() native.ComponentOptions {
	return native.ComponentOptions{
		LowRes:       o.EnableLowRes,
		FastDecoding: o.EnableFastDecoding,
		Threads:      0,
		CodecOptions: o.CodecOptions,
	}
}

func mustParseSpec(s string) types.StreamSpecifier {
	spec, err := types.ParseStreamSpecifier(s)
	if err != nil {
		return types.StreamSpecifier{}
	}
	return spec
}
