package session

import (
	"bytes"
	"context"
	"errors"
	stdimage "image"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuvoice-client-go/internal/backend"
	"docuvoice-client-go/internal/domain/image"
	platformerrors "docuvoice-client-go/internal/platform/errors"
	"docuvoice-client-go/internal/platform/logging"
	"docuvoice-client-go/internal/platform/storage"
)

type fakeAPI struct {
	mu         sync.Mutex
	startCalls int32
	startDelay time.Duration
	startErr   error
	session    *backend.Session

	recentDocs []backend.RecentDoc
	recentErr  error
	imageData  []byte
	imageErr   error

	lastFilename string
}

func (f *fakeAPI) StartSession(ctx context.Context, filename string, jpegBytes []byte) (*backend.Session, error) {
	atomic.AddInt32(&f.startCalls, 1)
	if f.startDelay > 0 {
		time.Sleep(f.startDelay)
	}
	f.mu.Lock()
	f.lastFilename = filename
	f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.session, nil
}

func (f *fakeAPI) RecentDocs(ctx context.Context) ([]backend.RecentDoc, error) {
	return f.recentDocs, f.recentErr
}

func (f *fakeAPI) Image(ctx context.Context, path string) ([]byte, error) {
	return f.imageData, f.imageErr
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

func smallJPEG(t *testing.T) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, jpeg.Encode(buf, stdimage.NewRGBA(stdimage.Rect(0, 0, 8, 8)), nil))
	return buf.Bytes()
}

func newTestUploader(t *testing.T, api API, cooldown time.Duration) (*Uploader, *storage.Store) {
	t.Helper()
	logger := testLogger(t)
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	return NewUploader(UploaderOptions{
		API:        api,
		Normalizer: image.NewNormalizer(logger),
		Store:      store,
		Logger:     logger,
		Image:      image.Options{MaxWidth: 1920, MaxHeight: 1920, Quality: 0.85},
		Cooldown:   cooldown,
	}), store
}

func TestUploaderStart(t *testing.T) {
	api := &fakeAPI{session: &backend.Session{DocID: "1700000000000", Summary: "a memo"}}
	up, store := newTestUploader(t, api, time.Second)

	sess, err := up.Start(context.Background(), image.CapturedImage{Data: smallJPEG(t), MIMEType: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, "1700000000000", sess.DocID)
	assert.Equal(t, "a memo", sess.Summary)
	assert.Equal(t, "capture.jpg", api.lastFilename)
	assert.True(t, store.Interacted(), "successful upload must count as user interaction")
}

func TestUploaderConcurrentStartsShareOneRequest(t *testing.T) {
	api := &fakeAPI{
		session:    &backend.Session{DocID: "doc-1"},
		startDelay: 50 * time.Millisecond,
	}
	up, _ := newTestUploader(t, api, time.Second)
	payload := smallJPEG(t)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = up.Start(context.Background(), image.CapturedImage{Data: payload, MIMEType: "image/jpeg"})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&api.startCalls))
	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrUploadCooldown)
		}
	}
	assert.GreaterOrEqual(t, succeeded, 1)
}

func TestUploaderCooldownSuppressesSecondStart(t *testing.T) {
	api := &fakeAPI{session: &backend.Session{DocID: "doc-1"}}
	up, _ := newTestUploader(t, api, 80*time.Millisecond)
	payload := smallJPEG(t)

	_, err := up.Start(context.Background(), image.CapturedImage{Data: payload, MIMEType: "image/jpeg"})
	require.NoError(t, err)

	_, err = up.Start(context.Background(), image.CapturedImage{Data: payload, MIMEType: "image/jpeg"})
	assert.ErrorIs(t, err, ErrUploadCooldown)
	assert.Equal(t, int32(1), atomic.LoadInt32(&api.startCalls))

	time.Sleep(120 * time.Millisecond)
	_, err = up.Start(context.Background(), image.CapturedImage{Data: payload, MIMEType: "image/jpeg"})
	require.NoError(t, err, "cooldown expiry must re-arm the uploader")
	assert.Equal(t, int32(2), atomic.LoadInt32(&api.startCalls))
}

func TestUploaderStartErrorIsNotSwallowed(t *testing.T) {
	api := &fakeAPI{startErr: errors.New("backend down")}
	up, store := newTestUploader(t, api, time.Second)

	_, err := up.Start(context.Background(), image.CapturedImage{Data: smallJPEG(t), MIMEType: "image/jpeg"})
	assert.ErrorContains(t, err, "backend down")
	assert.False(t, store.Interacted())
}

func TestRecovererHappyPath(t *testing.T) {
	api := &fakeAPI{
		session: &backend.Session{DocID: "new-doc", Summary: "restored"},
		recentDocs: []backend.RecentDoc{
			{DocID: "other", Path: "/data/uploads/other.jpg"},
			{DocID: "lost-doc", Path: "/data/uploads/lost.jpg"},
		},
		imageData: []byte("jpeg bytes"),
	}
	r := NewRecoverer(api, testLogger(t))

	sess, err := r.Recover(context.Background(), "lost-doc")
	require.NoError(t, err)
	assert.Equal(t, "new-doc", sess.DocID)
	assert.Regexp(t, `^recovered-[0-9a-f-]+\.jpg$`, api.lastFilename)
}

func TestRecovererDocNotInRecentList(t *testing.T) {
	api := &fakeAPI{recentDocs: []backend.RecentDoc{{DocID: "other", Path: "/p"}}}
	r := NewRecoverer(api, testLogger(t))

	_, err := r.Recover(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindSession))
	assert.Equal(t, int32(0), atomic.LoadInt32(&api.startCalls), "no re-upload without a stored image")
}

func TestRecovererEmptyImageFails(t *testing.T) {
	api := &fakeAPI{
		recentDocs: []backend.RecentDoc{{DocID: "doc", Path: "/p"}},
		imageData:  nil,
	}
	r := NewRecoverer(api, testLogger(t))

	_, err := r.Recover(context.Background(), "doc")
	require.Error(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&api.startCalls))
}

func TestRecovererRecentDocsFailure(t *testing.T) {
	api := &fakeAPI{recentErr: errors.New("network unreachable")}
	r := NewRecoverer(api, testLogger(t))

	_, err := r.Recover(context.Background(), "doc")
	assert.ErrorContains(t, err, "recent docs lookup failed")
}
