// Package session orchestrates the upload flow that opens a document
// session on the backend, plus recovery when the backend loses one.
package session

import (
	"context"
	"time"

	cache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"docuvoice-client-go/internal/backend"
	"docuvoice-client-go/internal/domain/eventbus"
	"docuvoice-client-go/internal/domain/image"
	platformerrors "docuvoice-client-go/internal/platform/errors"
	"docuvoice-client-go/internal/platform/logging"
	"docuvoice-client-go/internal/platform/storage"
)

// API is the backend surface the session layer needs. *backend.Client
// satisfies it; tests substitute fakes.
type API interface {
	StartSession(ctx context.Context, filename string, jpegBytes []byte) (*backend.Session, error)
	RecentDocs(ctx context.Context) ([]backend.RecentDoc, error)
	Image(ctx context.Context, path string) ([]byte, error)
}

const (
	startKey        = "start_session"
	defaultCooldown = time.Second
)

// ErrUploadCooldown is returned when a start request arrives while the
// previous one is still cooling down.
var ErrUploadCooldown = platformerrors.New(platformerrors.KindSession, "session.start", "upload cooling down")

// Uploader runs capture -> normalize -> start_session exactly once per
// trigger burst. Concurrent callers share one in-flight request, and a
// short cooldown swallows double-fires from repeated UI events.
type Uploader struct {
	api        API
	normalizer *image.Normalizer
	store      *storage.Store
	logger     *logging.Logger
	opts       image.Options
	cooldown   time.Duration

	group singleflight.Group
	guard *cache.Cache
}

// UploaderOptions configures an Uploader.
type UploaderOptions struct {
	API        API
	Normalizer *image.Normalizer
	Store      *storage.Store
	Logger     *logging.Logger
	Image      image.Options
	Cooldown   time.Duration
}

func NewUploader(opts UploaderOptions) *Uploader {
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Uploader{
		api:        opts.API,
		normalizer: opts.Normalizer,
		store:      opts.Store,
		logger:     opts.Logger,
		opts:       opts.Image,
		cooldown:   cooldown,
		guard:      cache.New(cooldown, cooldown),
	}
}

// Start normalizes the captured image and opens a backend session.
// Callers racing on the same trigger receive the result of a single
// request; a call landing inside the post-flight cooldown window gets
// ErrUploadCooldown instead of firing a duplicate upload.
func (u *Uploader) Start(ctx context.Context, captured image.CapturedImage) (*backend.Session, error) {
	if _, cooling := u.guard.Get(startKey); cooling {
		u.logger.DebugTag("UPLOAD", "start suppressed by cooldown")
		return nil, ErrUploadCooldown
	}

	v, err, shared := u.group.Do(startKey, func() (interface{}, error) {
		defer u.guard.Set(startKey, struct{}{}, u.cooldown)
		return u.start(ctx, captured)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		u.logger.DebugTag("UPLOAD", "concurrent start joined in-flight request")
	}
	return v.(*backend.Session), nil
}

func (u *Uploader) start(ctx context.Context, captured image.CapturedImage) (*backend.Session, error) {
	began := time.Now()

	doc, err := u.normalizer.Normalize(ctx, captured, u.opts)
	if err != nil {
		return nil, err
	}

	sess, err := u.api.StartSession(ctx, doc.Filename, doc.Data)
	if err != nil {
		eventbus.Publish(eventbus.EventSystemError, err.Error())
		return nil, err
	}

	// Starting a session is always user-initiated, so it doubles as the
	// interaction signal that unlocks summary auto-play.
	if u.store != nil {
		if err := u.store.MarkInteracted(); err != nil {
			u.logger.WarnTag("UPLOAD", "failed to persist interaction flag: %v", err)
		}
	}

	u.logger.InfoTiming("start_session took %s", time.Since(began))
	u.logger.InfoTag("UPLOAD", "session started doc_id=%s (%d bytes, reencoded=%t)",
		sess.DocID, len(doc.Data), doc.Reencoded)
	eventbus.Publish(eventbus.EventSessionStarted, sess.DocID)
	return sess, nil
}
