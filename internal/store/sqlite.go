package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// messageRow is the GORM model for a stored chat message.
type messageRow struct {
	ID        string    `gorm:"primarykey;size:36"`
	ClientID  string    `gorm:"size:128"`
	Username  string    `gorm:"size:100;not null"`
	Text      string    `gorm:"not null"`
	Timestamp time.Time `gorm:"not null;index"`
	Seq       int64     `gorm:"not null;index"`
}

// TableName returns the table name for messageRow.
func (messageRow) TableName() string {
	return "messages"
}

func (r messageRow) message() Message {
	return Message{
		ID:        r.ID,
		ClientID:  r.ClientID,
		Username:  r.Username,
		Text:      r.Text,
		Timestamp: r.Timestamp.UTC(),
	}
}

// SQLStore persists messages through GORM. It is used with the SQLite driver.
type SQLStore struct {
	db     *gorm.DB
	seq    atomic.Int64
	closed atomic.Bool
}

// OpenSQLite opens (creating if needed) the SQLite database at path.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return NewSQLStore(db)
}

// NewSQLStore migrates the messages table on db and returns a store over it.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&messageRow{}); err != nil {
		return nil, fmt.Errorf("migrate messages: %w", err)
	}

	s := &SQLStore{db: db}

	var last messageRow
	err := db.Order("seq desc").Limit(1).Take(&last).Error
	switch {
	case err == nil:
		s.seq.Store(last.Seq)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, fmt.Errorf("load message sequence: %w", err)
	}
	return s, nil
}

// Insert saves msg and returns its generated id.
func (s *SQLStore) Insert(ctx context.Context, msg Message) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	row := messageRow{
		ID:        uuid.NewString(),
		ClientID:  msg.ClientID,
		Username:  msg.Username,
		Text:      msg.Text,
		Timestamp: msg.Timestamp.UTC(),
		Seq:       s.seq.Add(1),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to insert message: %w", err)
	}
	return row.ID, nil
}

// Query returns messages sorted by timestamp, ties broken by insertion order.
func (s *SQLStore) Query(ctx context.Context, q Query) ([]Message, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	dir := q.Order.String()
	tx := s.db.WithContext(ctx).Order("timestamp " + dir).Order("seq " + dir)
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []messageRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	msgs := make([]Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.message())
	}
	return msgs, nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("sqlite handle: %w", err)
	}
	return sqlDB.Close()
}
