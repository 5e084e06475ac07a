package playback

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/hajimehoshi/go-mp3"

	"docuvoice-client-go/internal/domain/eventbus"
	"docuvoice-client-go/internal/platform/logging"
	"docuvoice-client-go/internal/platform/storage"
)

// TTSAPI is the slice of the backend client playback needs.
type TTSAPI interface {
	TTS(ctx context.Context, text string) ([]byte, error)
}

const defaultAutoPlayCooldown = time.Second

// Controller serializes voice output. Starting a new playback always
// stops the current one first, and every playback releases its resources
// exactly once regardless of how it ends (finishes, errors, or is
// stopped mid-clip).
type Controller struct {
	output   Output
	tts      TTSAPI
	store    *storage.Store
	logger   *logging.Logger
	cooldown time.Duration

	mu     sync.Mutex
	active *playing
}

// playing is one in-flight clip. release is guarded by once so the
// stop path and the natural-finish path cannot double-fire events.
type playing struct {
	messageID int
	cancel    context.CancelFunc
	done      chan struct{}
	once      sync.Once
}

func (p *playing) release(stopped bool) {
	p.once.Do(func() {
		p.cancel()
		if stopped {
			eventbus.Publish(eventbus.EventPlaybackStopped, eventbus.PlaybackEventData{MessageID: p.messageID})
		}
	})
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	Output           Output
	TTS              TTSAPI
	Store            *storage.Store
	Logger           *logging.Logger
	AutoPlayCooldown time.Duration
}

func NewController(opts ControllerOptions) *Controller {
	cooldown := opts.AutoPlayCooldown
	if cooldown <= 0 {
		cooldown = defaultAutoPlayCooldown
	}
	return &Controller{
		output:   opts.Output,
		tts:      opts.TTS,
		store:    opts.Store,
		logger:   opts.Logger,
		cooldown: cooldown,
	}
}

// Play starts the clip asynchronously, stopping any current playback
// first. An empty clip is a silent no-op. messageID tags the playback
// events so the conversation view can highlight the speaking message;
// pass a negative id for untagged playback such as the summary.
func (c *Controller) Play(ctx context.Context, messageID int, audio []byte) error {
	if len(audio) == 0 {
		c.logger.DebugTag("TTS", "empty clip for message %d, nothing to play", messageID)
		return nil
	}

	playCtx, cancel := context.WithCancel(ctx)
	next := &playing{
		messageID: messageID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	prev := c.active
	c.active = next
	c.mu.Unlock()
	if prev != nil {
		prev.release(true)
		<-prev.done
	}

	duration := mp3Duration(audio)
	eventbus.Publish(eventbus.EventPlaybackStarted, eventbus.PlaybackEventData{
		MessageID: messageID,
		Duration:  duration,
	})
	c.logger.InfoTTS("playing message %d (%d bytes, %.1fs)", messageID, len(audio), duration)

	go func() {
		defer close(next.done)
		err := c.output.Play(playCtx, audio)
		if err != nil {
			c.logger.WarnTag("TTS", "playback of message %d failed: %v", messageID, err)
			eventbus.Publish(eventbus.EventPlaybackError, eventbus.PlaybackEventData{
				MessageID: messageID,
				Error:     err.Error(),
			})
		}
		next.release(err == nil)

		c.mu.Lock()
		if c.active == next {
			c.active = nil
		}
		c.mu.Unlock()
	}()
	return nil
}

// Speak synthesizes text and plays it. Failures surface as playback
// errors on the bus and as the returned error; playback state stays
// consistent either way.
func (c *Controller) Speak(ctx context.Context, messageID int, text string) error {
	if text == "" {
		return nil
	}
	audio, err := c.tts.TTS(ctx, text)
	if err != nil {
		c.logger.WarnTag("TTS", "synthesis failed for message %d: %v", messageID, err)
		eventbus.Publish(eventbus.EventPlaybackError, eventbus.PlaybackEventData{
			MessageID: messageID,
			Error:     err.Error(),
		})
		return err
	}
	return c.Play(ctx, messageID, audio)
}

// Stop halts the current playback, if any. Calling it with nothing
// playing, or twice in a row, is harmless.
func (c *Controller) Stop() {
	c.mu.Lock()
	active := c.active
	c.active = nil
	c.mu.Unlock()

	if active == nil {
		return
	}
	active.release(true)
	<-active.done
}

// Playing reports whether a clip is currently active.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// PlayingID returns the id of the message currently being spoken. The
// second return is false when nothing plays or the active clip is
// untagged.
func (c *Controller) PlayingID() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.messageID < 0 {
		return 0, false
	}
	return c.active.messageID, true
}

// AutoPlaySummary speaks the document summary at most once per trigger
// window, and only after the user has interacted with the app. The
// persisted timestamp guards against double-fires when session start
// and history load both request the summary within the cooldown.
func (c *Controller) AutoPlaySummary(ctx context.Context, summary string) error {
	if summary == "" {
		return nil
	}
	if c.store != nil {
		if !c.store.Interacted() {
			c.logger.DebugTag("TTS", "summary auto-play skipped: no user interaction yet")
			return nil
		}
		last := c.store.LastAutoPlayed()
		if !last.IsZero() && time.Since(last) < c.cooldown {
			c.logger.DebugTag("TTS", "summary auto-play skipped: within cooldown")
			return nil
		}
		if err := c.store.MarkAutoPlayed(time.Now()); err != nil {
			c.logger.WarnTag("TTS", "failed to persist auto-play timestamp: %v", err)
		}
	}
	return c.Speak(ctx, -1, summary)
}

// mp3Duration probes the clip length for the playback-started event.
// Non-MP3 or malformed clips report zero and still play.
func mp3Duration(audio []byte) float64 {
	dec, err := mp3.NewDecoder(bytes.NewReader(audio))
	if err != nil {
		return 0
	}
	bytesPerSecond := dec.SampleRate() * 4
	if bytesPerSecond == 0 {
		return 0
	}
	return float64(dec.Length()) / float64(bytesPerSecond)
}
