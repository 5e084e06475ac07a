// Package recent lists and manages the backend's recently scanned
// documents, with a short client-side cache so reopening the picker
// does not hammer the server.
package recent

import (
	"context"
	"time"

	cache "github.com/patrickmn/go-cache"

	"docuvoice-client-go/internal/backend"
	"docuvoice-client-go/internal/platform/logging"
)

// API is the slice of the backend client this package needs.
type API interface {
	RecentDocs(ctx context.Context) ([]backend.RecentDoc, error)
	DeleteDoc(ctx context.Context, docID, path string) (bool, error)
}

const (
	cacheKey   = "recent_docs"
	defaultTTL = 30 * time.Second
)

// Service wraps the recent-documents endpoints with a TTL cache.
type Service struct {
	api    API
	logger *logging.Logger
	cache  *cache.Cache
}

func NewService(api API, logger *logging.Logger) *Service {
	return &Service{
		api:    api,
		logger: logger,
		cache:  cache.New(defaultTTL, time.Minute),
	}
}

// List returns the recent documents, newest first as the backend sends
// them. Results are cached briefly; pass force to bypass the cache.
func (s *Service) List(ctx context.Context, force bool) ([]backend.RecentDoc, error) {
	if !force {
		if v, ok := s.cache.Get(cacheKey); ok {
			return v.([]backend.RecentDoc), nil
		}
	}
	docs, err := s.api.RecentDocs(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(cacheKey, docs, cache.DefaultExpiration)
	return docs, nil
}

// Delete removes a document server-side and invalidates the cache.
func (s *Service) Delete(ctx context.Context, docID, path string) (bool, error) {
	removed, err := s.api.DeleteDoc(ctx, docID, path)
	if err != nil {
		return false, err
	}
	s.cache.Delete(cacheKey)
	if removed {
		s.logger.InfoTag("HTTP", "deleted doc_id=%s", docID)
	}
	return removed, nil
}
