// Package capture owns the microphone: an idle/recording state machine
// that acquires the input device at most once, streams level frames
// while recording, and always tears the device down on the way out.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	platformerrors "docuvoice-client-go/internal/platform/errors"
)

// Source produces a raw PCM stream (s16le) from the capture device.
// Closing the returned reader releases the device.
type Source interface {
	Start(ctx context.Context) (io.ReadCloser, error)
}

// Capability is the probed microphone tier. It starts Unknown and
// settles on first device acquisition: Unsupported when no capture path
// exists (sticky for the process lifetime), Basic when raw PCM capture
// works, Advanced when a compressed voice encoding is available too.
type Capability int

const (
	CapabilityUnknown Capability = iota
	CapabilityUnsupported
	CapabilityBasic
	CapabilityAdvanced
)

func (c Capability) String() string {
	switch c {
	case CapabilityUnsupported:
		return "unsupported"
	case CapabilityBasic:
		return "supported-basic"
	case CapabilityAdvanced:
		return "supported-advanced"
	default:
		return "unknown"
	}
}

// Supported reports whether recording is possible at all.
func (c Capability) Supported() bool {
	return c == CapabilityBasic || c == CapabilityAdvanced
}

// OpusEncoder compresses a raw s16le take into an ogg/opus clip for
// upload. Sources that cannot encode simply do not implement it and the
// take ships as WAV.
type OpusEncoder interface {
	EncodeOpus(ctx context.Context, pcm []byte, sampleRate, channels int) ([]byte, error)
}

// FFmpegSource records via an ffmpeg child process, asking for mono
// s16le on stdout. The same binary works across pulse/alsa/avfoundation
// by switching InputFormat and Device.
type FFmpegSource struct {
	Binary      string
	InputFormat string
	Device      string
	SampleRate  int
	Channels    int
}

func NewFFmpegSource(binary, inputFormat, device string, sampleRate, channels int) *FFmpegSource {
	if binary == "" {
		binary = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	return &FFmpegSource{
		Binary:      binary,
		InputFormat: inputFormat,
		Device:      device,
		SampleRate:  sampleRate,
		Channels:    channels,
	}
}

// Probe checks whether the capture binary is present and which encoding
// tier it supports. Device-level failures only show up on Start; a
// missing binary is the common case worth catching early.
func (s *FFmpegSource) Probe() Capability {
	if _, err := exec.LookPath(s.Binary); err != nil {
		return CapabilityUnsupported
	}
	out, err := exec.Command(s.Binary, "-hide_banner", "-encoders").Output()
	if err == nil && bytes.Contains(out, []byte("libopus")) {
		return CapabilityAdvanced
	}
	return CapabilityBasic
}

// EncodeOpus transcodes the raw take to ogg/opus through a second
// ffmpeg run.
func (s *FFmpegSource) EncodeOpus(ctx context.Context, pcm []byte, sampleRate, channels int) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.Binary,
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-i", "pipe:0",
		"-c:a", "libopus",
		"-f", "ogg",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(pcm)
	out, err := cmd.Output()
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindCapture, "capture.encode", "opus encode failed", err)
	}
	return out, nil
}

type processStream struct {
	io.Reader
	cmd    *exec.Cmd
	cancel context.CancelFunc
}

func (p *processStream) Close() error {
	p.cancel()
	// Wait reaps the child; the kill from cancel makes the error value
	// uninteresting here.
	_ = p.cmd.Wait()
	return nil
}

func (s *FFmpegSource) Start(ctx context.Context) (io.ReadCloser, error) {
	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, s.Binary,
		"-hide_banner", "-loglevel", "error",
		"-f", s.InputFormat,
		"-i", s.Device,
		"-ac", strconv.Itoa(s.Channels),
		"-ar", strconv.Itoa(s.SampleRate),
		"-f", "s16le",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, platformerrors.Wrap(platformerrors.KindCapture, "capture.source", "stdout pipe failed", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, platformerrors.Wrap(platformerrors.KindCapture, "capture.source",
			fmt.Sprintf("%s failed to start", s.Binary), err)
	}
	return &processStream{Reader: stdout, cmd: cmd, cancel: cancel}, nil
}
