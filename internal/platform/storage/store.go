package storage

import (
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	platformerrors "docuvoice-client-go/internal/platform/errors"
)

// Store is the client-local persistent state: interaction flags, feedback
// markers and the offline feedback queue. It stands in for the browser
// localStorage/sessionStorage the PWA used.
type Store struct {
	db *gorm.DB
}

// Open initialises the SQLite database under dir and migrates the schema.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "open", "create data directory", err)
	}

	dbPath := filepath.Join(dir, "docuvoice.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "open", "open database", err)
	}

	if err := db.AutoMigrate(&FlagRecord{}, &FeedbackItem{}); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "open", "migrate schema", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle for integrations that need it.
func (s *Store) DB() *gorm.DB {
	return s.db
}

const (
	flagUserInteracted = "userInteracted"
	flagAutoPlayedAt   = "summary_tts_once_at"
	prefixFeedback     = "feedback_given:"
)

// MarkInteracted records that the user has interacted in this session,
// which gates summary auto-play.
func (s *Store) MarkInteracted() error {
	return s.setFlag(flagUserInteracted, "true")
}

// Interacted reports whether user interaction has been recorded.
func (s *Store) Interacted() bool {
	return s.getFlag(flagUserInteracted) == "true"
}

// MarkAutoPlayed stores the instant of the last summary auto-play.
func (s *Store) MarkAutoPlayed(at time.Time) error {
	return s.setFlag(flagAutoPlayedAt, at.Format(time.RFC3339Nano))
}

// LastAutoPlayed returns the stored auto-play instant, zero when absent.
func (s *Store) LastAutoPlayed() time.Time {
	v := s.getFlag(flagAutoPlayedAt)
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// MarkFeedbackGiven remembers that feedback was submitted for a document.
func (s *Store) MarkFeedbackGiven(docID string) error {
	return s.setFlag(prefixFeedback+docID, "true")
}

// FeedbackGiven reports whether feedback was already submitted for a document.
func (s *Store) FeedbackGiven(docID string) bool {
	return s.getFlag(prefixFeedback+docID) == "true"
}

func (s *Store) setFlag(key, value string) error {
	rec := FlagRecord{Key: key, Value: value}
	err := s.db.Save(&rec).Error
	return platformerrors.Wrap(platformerrors.KindStorage, "flag", "save flag", err)
}

func (s *Store) getFlag(key string) string {
	var rec FlagRecord
	if err := s.db.First(&rec, "key = ?", key).Error; err != nil {
		return ""
	}
	return rec.Value
}
