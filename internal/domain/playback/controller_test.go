package playback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuvoice-client-go/internal/platform/logging"
	"docuvoice-client-go/internal/platform/storage"
)

// blockingOutput plays until its context is cancelled or it is told to
// finish, recording every clip it received.
type blockingOutput struct {
	mu      sync.Mutex
	clips   [][]byte
	playing int32
	finish  chan struct{}
	err     error
}

func newBlockingOutput() *blockingOutput {
	return &blockingOutput{finish: make(chan struct{})}
}

func (o *blockingOutput) Play(ctx context.Context, audio []byte) error {
	o.mu.Lock()
	o.clips = append(o.clips, audio)
	o.mu.Unlock()
	atomic.AddInt32(&o.playing, 1)
	defer atomic.AddInt32(&o.playing, -1)
	if o.err != nil {
		return o.err
	}
	select {
	case <-ctx.Done():
		return nil
	case <-o.finish:
		return nil
	}
}

func (o *blockingOutput) clipCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.clips)
}

type fakeTTS struct {
	audio []byte
	err   error
	calls int32
	last  string
}

func (f *fakeTTS) TTS(ctx context.Context, text string) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	f.last = text
	return f.audio, f.err
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.NewLogger(&logging.LogCfg{
		LogLevel: "error",
		LogDir:   t.TempDir(),
		LogFile:  "test.log",
	})
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })
	return logger
}

func testStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	return store
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPlayEmptyClipIsNoOp(t *testing.T) {
	out := newBlockingOutput()
	c := NewController(ControllerOptions{Output: out, Logger: testLogger(t)})

	require.NoError(t, c.Play(context.Background(), 1, nil))
	assert.False(t, c.Playing())
	assert.Equal(t, 0, out.clipCount())
}

func TestPlayStopsPreviousPlayback(t *testing.T) {
	out := newBlockingOutput()
	c := NewController(ControllerOptions{Output: out, Logger: testLogger(t)})

	require.NoError(t, c.Play(context.Background(), 1, []byte("clip one")))
	waitFor(t, func() bool { return atomic.LoadInt32(&out.playing) == 1 })

	require.NoError(t, c.Play(context.Background(), 2, []byte("clip two")))
	waitFor(t, func() bool { return out.clipCount() == 2 })

	// Only the second clip may still be active.
	waitFor(t, func() bool { return atomic.LoadInt32(&out.playing) == 1 })
	assert.True(t, c.Playing())
	c.Stop()
}

func TestStopIsIdempotent(t *testing.T) {
	out := newBlockingOutput()
	c := NewController(ControllerOptions{Output: out, Logger: testLogger(t)})

	require.NoError(t, c.Play(context.Background(), 1, []byte("clip")))
	waitFor(t, func() bool { return atomic.LoadInt32(&out.playing) == 1 })

	c.Stop()
	assert.False(t, c.Playing())
	c.Stop()
	c.Stop()
	assert.False(t, c.Playing())
}

func TestPlayingIDTracksActiveClip(t *testing.T) {
	out := newBlockingOutput()
	c := NewController(ControllerOptions{Output: out, Logger: testLogger(t)})

	_, ok := c.PlayingID()
	assert.False(t, ok)

	require.NoError(t, c.Play(context.Background(), 7, []byte("clip")))
	waitFor(t, func() bool { return atomic.LoadInt32(&out.playing) == 1 })
	id, ok := c.PlayingID()
	assert.True(t, ok)
	assert.Equal(t, 7, id)

	c.Stop()
	_, ok = c.PlayingID()
	assert.False(t, ok)
}

func TestPlayingIDUntaggedClip(t *testing.T) {
	out := newBlockingOutput()
	c := NewController(ControllerOptions{Output: out, Logger: testLogger(t)})

	require.NoError(t, c.Play(context.Background(), -1, []byte("summary clip")))
	waitFor(t, func() bool { return atomic.LoadInt32(&out.playing) == 1 })
	assert.True(t, c.Playing())
	_, ok := c.PlayingID()
	assert.False(t, ok)
	c.Stop()
}

func TestNaturalFinishClearsActive(t *testing.T) {
	out := newBlockingOutput()
	c := NewController(ControllerOptions{Output: out, Logger: testLogger(t)})

	require.NoError(t, c.Play(context.Background(), 1, []byte("clip")))
	waitFor(t, func() bool { return atomic.LoadInt32(&out.playing) == 1 })

	close(out.finish)
	waitFor(t, func() bool { return !c.Playing() })
}

func TestSpeakSynthesizesThenPlays(t *testing.T) {
	out := newBlockingOutput()
	tts := &fakeTTS{audio: []byte("mp3 bytes")}
	c := NewController(ControllerOptions{Output: out, TTS: tts, Logger: testLogger(t)})

	require.NoError(t, c.Speak(context.Background(), 3, "hello"))
	waitFor(t, func() bool { return out.clipCount() == 1 })
	assert.Equal(t, "hello", tts.last)
	c.Stop()
}

func TestSpeakSynthesisFailure(t *testing.T) {
	out := newBlockingOutput()
	tts := &fakeTTS{err: errors.New("tts down")}
	c := NewController(ControllerOptions{Output: out, TTS: tts, Logger: testLogger(t)})

	err := c.Speak(context.Background(), 3, "hello")
	assert.ErrorContains(t, err, "tts down")
	assert.Equal(t, 0, out.clipCount())
	assert.False(t, c.Playing())
}

func TestAutoPlaySummaryRequiresInteraction(t *testing.T) {
	out := newBlockingOutput()
	tts := &fakeTTS{audio: []byte("mp3")}
	store := testStore(t)
	c := NewController(ControllerOptions{Output: out, TTS: tts, Store: store, Logger: testLogger(t)})

	require.NoError(t, c.AutoPlaySummary(context.Background(), "summary"))
	assert.Equal(t, int32(0), atomic.LoadInt32(&tts.calls), "no auto-play before first interaction")

	require.NoError(t, store.MarkInteracted())
	require.NoError(t, c.AutoPlaySummary(context.Background(), "summary"))
	waitFor(t, func() bool { return out.clipCount() == 1 })
	c.Stop()
}

func TestAutoPlaySummaryCooldown(t *testing.T) {
	out := newBlockingOutput()
	tts := &fakeTTS{audio: []byte("mp3")}
	store := testStore(t)
	require.NoError(t, store.MarkInteracted())
	c := NewController(ControllerOptions{
		Output: out, TTS: tts, Store: store, Logger: testLogger(t),
		AutoPlayCooldown: 100 * time.Millisecond,
	})

	require.NoError(t, c.AutoPlaySummary(context.Background(), "summary"))
	require.NoError(t, c.AutoPlaySummary(context.Background(), "summary"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&tts.calls), "second trigger inside cooldown is swallowed")

	time.Sleep(150 * time.Millisecond)
	require.NoError(t, c.AutoPlaySummary(context.Background(), "summary"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&tts.calls))
	c.Stop()
}

func TestAutoPlayEmptySummaryIsNoOp(t *testing.T) {
	tts := &fakeTTS{audio: []byte("mp3")}
	store := testStore(t)
	require.NoError(t, store.MarkInteracted())
	c := NewController(ControllerOptions{Output: newBlockingOutput(), TTS: tts, Store: store, Logger: testLogger(t)})

	require.NoError(t, c.AutoPlaySummary(context.Background(), ""))
	assert.Equal(t, int32(0), atomic.LoadInt32(&tts.calls))
}

func TestMP3DurationMalformedClip(t *testing.T) {
	assert.Equal(t, float64(0), mp3Duration([]byte("not mp3")))
	assert.Equal(t, float64(0), mp3Duration(nil))
}
