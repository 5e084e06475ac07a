// Package feedback submits per-document user feedback, queueing it
// locally when the backend is unreachable so nothing is lost.
package feedback

import (
	"context"
	"time"

	"docuvoice-client-go/internal/domain/eventbus"
	"docuvoice-client-go/internal/platform/logging"
	"docuvoice-client-go/internal/platform/storage"
)

// API is the slice of the backend client feedback needs.
type API interface {
	Feedback(ctx context.Context, docID, feedback, summary string) error
}

// Service sends feedback at most once per document. Offline submissions
// land in the local queue and are retried by Flush.
type Service struct {
	api    API
	store  *storage.Store
	logger *logging.Logger
}

func NewService(api API, store *storage.Store, logger *logging.Logger) *Service {
	return &Service{api: api, store: store, logger: logger}
}

// Submit records feedback for docID. A second submission for the same
// document is a no-op. Backend failure queues the feedback locally and
// still counts the document as handled, so the user is never re-asked.
func (s *Service) Submit(ctx context.Context, docID, feedback, summary string) error {
	if docID == "" || feedback == "" {
		return nil
	}
	if s.store.FeedbackGiven(docID) {
		s.logger.DebugTag("FEEDBACK", "doc_id=%s already has feedback", docID)
		return nil
	}

	if err := s.api.Feedback(ctx, docID, feedback, summary); err != nil {
		s.logger.WarnTag("FEEDBACK", "submit failed for doc_id=%s, queueing: %v", docID, err)
		if qerr := s.store.EnqueueFeedback(storage.QueuedFeedback{
			DocID:     docID,
			Feedback:  feedback,
			Summary:   summary,
			Timestamp: time.Now().UnixMilli(),
		}); qerr != nil {
			return qerr
		}
	}

	if err := s.store.MarkFeedbackGiven(docID); err != nil {
		s.logger.WarnTag("FEEDBACK", "failed to persist feedback marker: %v", err)
	}
	eventbus.Publish(eventbus.EventSystemInfo, "feedback recorded for "+docID)
	return nil
}

// Given reports whether docID already has feedback.
func (s *Service) Given(docID string) bool {
	return s.store.FeedbackGiven(docID)
}

// Flush retries every queued feedback item, removing the ones the
// backend accepted. Items that fail again stay queued for next time.
func (s *Service) Flush(ctx context.Context) error {
	items, ids, err := s.store.PendingFeedback()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	var delivered []uint
	for i, item := range items {
		if err := s.api.Feedback(ctx, item.DocID, item.Feedback, item.Summary); err != nil {
			s.logger.WarnTag("FEEDBACK", "flush failed for doc_id=%s: %v", item.DocID, err)
			continue
		}
		delivered = append(delivered, ids[i])
	}
	if len(delivered) == 0 {
		return nil
	}

	s.logger.InfoTag("FEEDBACK", "flushed %d/%d queued items", len(delivered), len(items))
	return s.store.RemoveFeedback(delivered)
}
