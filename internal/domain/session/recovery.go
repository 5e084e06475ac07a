package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"docuvoice-client-go/internal/backend"
	"docuvoice-client-go/internal/domain/eventbus"
	platformerrors "docuvoice-client-go/internal/platform/errors"
	"docuvoice-client-go/internal/platform/logging"
)

// Recoverer rebuilds a lost backend session from the server's own recent
// document list. The backend keeps the original image on disk even after
// it forgets the session, so re-uploading that image restores a working
// doc_id without involving the user.
//
// Recoverer performs exactly one recovery attempt per call. Retry policy
// (ask again once, then surface the error) belongs to the caller; there is
// no loop here.
type Recoverer struct {
	api    API
	logger *logging.Logger

	group singleflight.Group
}

func NewRecoverer(api API, logger *logging.Logger) *Recoverer {
	return &Recoverer{api: api, logger: logger}
}

// Recover looks up docID in the backend's recent documents, downloads its
// stored image and re-uploads it to open a fresh session. Concurrent
// recoveries for the same docID collapse into a single attempt.
func (r *Recoverer) Recover(ctx context.Context, docID string) (*backend.Session, error) {
	v, err, shared := r.group.Do(docID, func() (interface{}, error) {
		return r.recover(ctx, docID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.DebugTag("RECOVER", "joined in-flight recovery for doc_id=%s", docID)
	}
	return v.(*backend.Session), nil
}

func (r *Recoverer) recover(ctx context.Context, docID string) (*backend.Session, error) {
	r.logger.InfoTag("RECOVER", "session lost, recovering doc_id=%s", docID)

	docs, err := r.api.RecentDocs(ctx)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindSession, "session.recover", "recent docs lookup failed", err)
	}

	var found *backend.RecentDoc
	for i := range docs {
		if docs[i].DocID == docID {
			found = &docs[i]
			break
		}
	}
	if found == nil || found.Path == "" {
		return nil, platformerrors.New(platformerrors.KindSession, "session.recover",
			fmt.Sprintf("doc_id=%s not in recent documents", docID))
	}

	img, err := r.api.Image(ctx, found.Path)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindSession, "session.recover", "stored image fetch failed", err)
	}
	if len(img) == 0 {
		return nil, platformerrors.New(platformerrors.KindSession, "session.recover", "stored image is empty")
	}

	// The stored image already went through normalization on its first
	// upload, so it is re-sent as-is.
	filename := "recovered-" + uuid.NewString() + ".jpg"
	sess, err := r.api.StartSession(ctx, filename, img)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindSession, "session.recover", "re-upload failed", err)
	}

	r.logger.InfoTag("RECOVER", "recovered doc_id=%s -> new doc_id=%s", docID, sess.DocID)
	eventbus.Publish(eventbus.EventSessionRecovered, sess.DocID)
	return sess, nil
}
