// Package store is the durable message store behind the chat coordinator. It
// exposes the two operations the coordinator needs, append and ordered range
// query, over SQLite (GORM), PostgreSQL (pgx) and Redis backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Tyrowin/roomchat/internal/config"
)

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("store: closed")

// Message is a persisted chat message. ID is assigned by the store on insert.
type Message struct {
	ID        string
	ClientID  string
	Username  string
	Text      string
	Timestamp time.Time
}

// Order is the sort direction on the message timestamp.
type Order int

const (
	// Ascending returns the oldest messages first.
	Ascending Order = iota
	// Descending returns the newest messages first.
	Descending
)

func (o Order) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

// Query selects messages sorted by timestamp. A non-positive Limit returns
// every message.
type Query struct {
	Order Order
	Limit int
}

// MessageStore is the contract the coordinator consumes.
type MessageStore interface {
	Insert(ctx context.Context, msg Message) (string, error)
	Query(ctx context.Context, q Query) ([]Message, error)
}

// Store is a MessageStore that owns a connection and must be closed.
type Store interface {
	MessageStore
	io.Closer
}

// Open connects the backend selected by cfg.Driver and prepares its schema.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case config.DriverSQLite, "":
		s, err = OpenSQLite(cfg.SQLitePath)
	case config.DriverPostgres:
		s, err = OpenPostgres(ctx, cfg.DatabaseURL)
	case config.DriverRedis:
		s, err = OpenRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Latest returns the newest limit messages ordered oldest to newest.
func Latest(ctx context.Context, s MessageStore, limit int) ([]Message, error) {
	msgs, err := s.Query(ctx, Query{Order: Descending, Limit: limit})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
