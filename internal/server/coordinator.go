package server

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tyrowin/roomchat/internal/config"
	"github.com/Tyrowin/roomchat/internal/store"
)

// Completion receives the result of an inbound event. It is invoked at most
// once per event by the coordinator.
type Completion func(result any)

// completion guards a Completion so it fires exactly once.
type completion struct {
	fn    Completion
	fired atomic.Bool
}

func newCompletion(fn Completion) *completion {
	return &completion{fn: fn}
}

// complete delivers result unless a result was already delivered.
func (c *completion) complete(result any) {
	if c.fired.CompareAndSwap(false, true) && c.fn != nil {
		c.fn(result)
	}
}

func (c *completion) pending() bool {
	return !c.fired.Load()
}

// Coordinator owns presence and room state for the chat room and handles
// every connection event against it.
type Coordinator struct {
	room         string
	presence     *Presence
	rooms        *Rooms
	store        store.MessageStore
	storeTimeout time.Duration
	history      config.HistoryConfig
	logger       *slog.Logger
	now          func() time.Time

	// lifecycle serializes join, leave and disconnect so presence and room
	// membership change together.
	lifecycle sync.Mutex
}

// NewCoordinator builds a coordinator for cfg.Room backed by st.
func NewCoordinator(cfg config.Config, st store.MessageStore, logger *slog.Logger) *Coordinator {
	cfg = config.Sanitize(cfg)
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		room:         cfg.Room,
		presence:     NewPresence(),
		rooms:        NewRooms(logger),
		store:        st,
		storeTimeout: cfg.Store.Timeout,
		history:      cfg.History,
		logger:       logger.With("component", "coordinator", "room", cfg.Room),
		now:          time.Now,
	}
}

// Room returns the room identifier every joined identity belongs to.
func (c *Coordinator) Room() string {
	return c.room
}

// Presence exposes the registry for read-only inspection.
func (c *Coordinator) Presence() *Presence {
	return c.presence
}

// Rooms exposes the broadcaster.
func (c *Coordinator) Rooms() *Rooms {
	return c.rooms
}
