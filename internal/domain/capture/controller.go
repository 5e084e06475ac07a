package capture

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"docuvoice-client-go/internal/domain/eventbus"
	platformerrors "docuvoice-client-go/internal/platform/errors"
	"docuvoice-client-go/internal/platform/logging"
)

// STTAPI is the slice of the backend client capture needs.
type STTAPI interface {
	STT(ctx context.Context, filename string, audio []byte) (string, error)
}

// State of the capture machine. There are only two: anything that ends
// a recording, normally or not, lands back in StateIdle.
type State int

const (
	StateIdle State = iota
	StateRecording
)

// Prober reports whether the capture device can be acquired at all.
// FFmpegSource implements it; fakes in tests answer directly.
type Prober interface {
	Probe() Capability
}

const (
	defaultMaxDuration   = 60 * time.Second
	defaultLevelInterval = 100 * time.Millisecond
	readChunk            = 3200 // 100ms of 16kHz mono s16le
)

// ErrNoSpeech is returned when transcription yields an empty result.
var ErrNoSpeech = platformerrors.New(platformerrors.KindCapture, "capture.transcribe", "no speech recognized")

// ErrMicUnavailable is returned when the capability probe has ruled the
// microphone out.
var ErrMicUnavailable = platformerrors.New(platformerrors.KindCapture, "capture.start", "microphone unavailable")

// Controller drives one microphone. Start acquires the device exactly
// once per recording; a second Start while recording is a no-op. Stop
// paths always release the device, whether transcription happens or the
// take is discarded.
type Controller struct {
	source        Source
	stt           STTAPI
	logger        *logging.Logger
	sampleRate    int
	channels      int
	maxDuration   time.Duration
	levelInterval time.Duration

	mu         sync.Mutex
	state      State
	capability Capability
	cancel     context.CancelFunc
	done       chan struct{}
	buf        *bytes.Buffer
	started    time.Time
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	Source        Source
	STT           STTAPI
	Logger        *logging.Logger
	SampleRate    int
	Channels      int
	MaxDuration   time.Duration
	LevelInterval time.Duration
}

func NewController(opts ControllerOptions) *Controller {
	c := &Controller{
		source:        opts.Source,
		stt:           opts.STT,
		logger:        opts.Logger,
		sampleRate:    opts.SampleRate,
		channels:      opts.Channels,
		maxDuration:   opts.MaxDuration,
		levelInterval: opts.LevelInterval,
		capability:    CapabilityUnknown,
	}
	if c.sampleRate <= 0 {
		c.sampleRate = 16000
	}
	if c.channels <= 0 {
		c.channels = 1
	}
	if c.maxDuration <= 0 {
		c.maxDuration = defaultMaxDuration
	}
	if c.levelInterval <= 0 {
		c.levelInterval = defaultLevelInterval
	}
	return c
}

// State reports the current machine state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Capability returns the last probe result without re-probing.
func (c *Controller) Capability() Capability {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capability
}

// probeLocked resolves the capability lazily, once, at first device
// acquisition. Unsupported stays Unsupported so the UI can stop
// offering the button.
func (c *Controller) probeLocked() Capability {
	if c.capability != CapabilityUnknown {
		return c.capability
	}
	if p, ok := c.source.(Prober); ok {
		c.capability = p.Probe()
	} else {
		c.capability = CapabilityBasic
	}
	c.logger.InfoTag("STT", "microphone capability: %s", c.capability)
	return c.capability
}

// Start moves idle -> recording. Calling it while already recording is
// a silent no-op, never a second device acquisition.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateRecording {
		c.mu.Unlock()
		c.logger.DebugTag("STT", "start ignored, already recording")
		return nil
	}
	if !c.probeLocked().Supported() {
		c.mu.Unlock()
		return ErrMicUnavailable
	}

	recCtx, cancel := context.WithCancel(ctx)
	stream, err := c.source.Start(recCtx)
	if err != nil {
		cancel()
		c.mu.Unlock()
		// Acquisition failures can be transient (device busy); the probed
		// tier stands and the next Start tries again.
		eventbus.Publish(eventbus.EventCaptureError, err.Error())
		return err
	}

	c.state = StateRecording
	c.cancel = cancel
	c.done = make(chan struct{})
	c.buf = &bytes.Buffer{}
	c.started = time.Now()
	done, buf := c.done, c.buf
	c.mu.Unlock()

	c.logger.InfoTag("STT", "recording started")
	eventbus.Publish(eventbus.EventCaptureStarted)

	go c.pump(recCtx, stream, buf, done)
	return nil
}

// pump copies PCM from the device into buf, emitting one level frame
// per chunk, until the context is cancelled, the stream ends, or the
// recording exceeds maxDuration. The stream is closed on every exit.
func (c *Controller) pump(ctx context.Context, stream io.ReadCloser, buf *bytes.Buffer, done chan struct{}) {
	defer close(done)
	defer stream.Close()

	chunk := make([]byte, readChunk)
	lastLevel := time.Time{}
	for {
		n, err := stream.Read(chunk)
		if n > 0 {
			c.mu.Lock()
			buf.Write(chunk[:n])
			elapsed := time.Since(c.started)
			c.mu.Unlock()

			if time.Since(lastLevel) >= c.levelInterval {
				lastLevel = time.Now()
				rms, peak := levelFrame(chunk[:n])
				eventbus.Publish(eventbus.EventCaptureLevel, eventbus.CaptureLevelData{
					RMS:     rms,
					Peak:    peak,
					Elapsed: elapsed.Seconds(),
				})
			}
			if elapsed > c.maxDuration {
				c.logger.WarnTag("STT", "recording hit max duration %s, stopping", c.maxDuration)
				return
			}
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				c.logger.WarnTag("STT", "capture stream error: %v", err)
				eventbus.Publish(eventbus.EventCaptureError, err.Error())
			}
			return
		}
	}
}

// stop tears the recording down and returns the captured PCM. Safe to
// call in any state; idle returns nil.
func (c *Controller) stop() []byte {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return nil
	}
	cancel, done, buf := c.cancel, c.done, c.buf
	c.state = StateIdle
	c.cancel = nil
	c.done = nil
	c.buf = nil
	c.mu.Unlock()

	cancel()
	<-done

	c.logger.InfoTag("STT", "recording stopped (%d bytes)", buf.Len())
	eventbus.Publish(eventbus.EventCaptureStopped)
	return buf.Bytes()
}

// Discard stops a recording without transcribing it.
func (c *Controller) Discard() {
	c.stop()
}

// StopAndTranscribe ends the recording and sends the take to the
// transcription endpoint. An empty transcript is an error: the caller
// shows "nothing recognized" instead of asking an empty question.
func (c *Controller) StopAndTranscribe(ctx context.Context) (string, error) {
	pcm := c.stop()
	if len(pcm) == 0 {
		return "", platformerrors.New(platformerrors.KindCapture, "capture.transcribe", "no audio captured")
	}

	filename, audio := c.encodeTake(ctx, pcm)
	began := time.Now()
	text, err := c.stt.STT(ctx, filename, audio)
	if err != nil {
		eventbus.Publish(eventbus.EventSTTError, err.Error())
		return "", err
	}
	c.logger.InfoTiming("stt took %s", time.Since(began))
	if text == "" {
		eventbus.Publish(eventbus.EventSTTError, ErrNoSpeech.Error())
		return "", ErrNoSpeech
	}
	c.logger.InfoSTT("transcript: %s", text)
	eventbus.Publish(eventbus.EventSTTResult, text)
	return text, nil
}

// encodeTake picks the best upload encoding the probed tier allows:
// ogg/opus on an advanced source, WAV otherwise. A failed opus encode
// falls back to WAV rather than losing the take.
func (c *Controller) encodeTake(ctx context.Context, pcm []byte) (string, []byte) {
	if c.Capability() == CapabilityAdvanced {
		if enc, ok := c.source.(OpusEncoder); ok {
			audio, err := enc.EncodeOpus(ctx, pcm, c.sampleRate, c.channels)
			if err == nil {
				return "recording.ogg", audio
			}
			c.logger.WarnTag("STT", "opus encode failed, falling back to wav: %v", err)
		}
	}
	return "recording.wav", wavBytes(pcm, c.sampleRate, c.channels)
}

// Close force-stops any active recording. Used on shutdown.
func (c *Controller) Close() {
	c.stop()
}
