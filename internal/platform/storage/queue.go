package storage

import (
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"

	platformerrors "docuvoice-client-go/internal/platform/errors"
)

// QueuedFeedback mirrors the backend feedback request body.
type QueuedFeedback struct {
	DocID     string `json:"doc_id"`
	Feedback  string `json:"feedback"`
	Summary   string `json:"summary"`
	Timestamp int64  `json:"timestamp"`
}

// EnqueueFeedback appends a failed submission for later retry.
func (s *Store) EnqueueFeedback(fb QueuedFeedback) error {
	if fb.Timestamp == 0 {
		fb.Timestamp = time.Now().UnixMilli()
	}
	raw, err := sonic.Marshal(fb)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "queue", "marshal feedback", err)
	}
	item := FeedbackItem{
		DocID:    fb.DocID,
		Payload:  datatypes.JSON(raw),
		QueuedAt: time.Now(),
	}
	return platformerrors.Wrap(platformerrors.KindStorage, "queue", "enqueue feedback",
		s.db.Create(&item).Error)
}

// PendingFeedback returns the queue in insertion order.
func (s *Store) PendingFeedback() ([]QueuedFeedback, []uint, error) {
	var items []FeedbackItem
	if err := s.db.Order("id asc").Find(&items).Error; err != nil {
		return nil, nil, platformerrors.Wrap(platformerrors.KindStorage, "queue", "load feedback queue", err)
	}

	out := make([]QueuedFeedback, 0, len(items))
	ids := make([]uint, 0, len(items))
	for _, item := range items {
		var fb QueuedFeedback
		if err := sonic.Unmarshal(item.Payload, &fb); err != nil {
			// An unreadable row is dropped rather than blocking the queue.
			s.db.Delete(&FeedbackItem{}, item.ID)
			continue
		}
		out = append(out, fb)
		ids = append(ids, item.ID)
	}
	return out, ids, nil
}

// RemoveFeedback deletes successfully flushed queue rows.
func (s *Store) RemoveFeedback(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return platformerrors.Wrap(platformerrors.KindStorage, "queue", "remove feedback",
		s.db.Delete(&FeedbackItem{}, ids).Error)
}
