package events

import (
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultHistorySize is the ring capacity used when none is configured.
const DefaultHistorySize = 1000

// Publisher is the real-time transport primitive.
type Publisher interface {
	Emit(channel string, payload any) error
}

// Bus is the single normalization point for changes. Producers never talk to
// the transport or to listeners directly.
type Bus struct {
	logger zerolog.Logger
	pub    Publisher
	now    func() time.Time
	newID  func() string

	mu      sync.RWMutex
	history *ring

	listeners registry
}

// NewBus creates a Bus publishing through pub, which may be nil. A
// non-positive historySize selects DefaultHistorySize.
func NewBus(logger zerolog.Logger, pub Publisher, historySize int) *Bus {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Bus{
		logger:  logger.With().Str("component", "events").Logger(),
		pub:     pub,
		now:     time.Now,
		newID:   uuid.NewString,
		history: newRing(historySize),
	}
}

// SetPublisher replaces the transport. Used when the transport is built after
// the bus.
func (b *Bus) SetPublisher(pub Publisher) {
	b.mu.Lock()
	b.pub = pub
	b.mu.Unlock()
}

// EmitChange validates op and itemType and emits the resulting event. Invalid
// input is logged and produces no event.
func (b *Bus) EmitChange(op, itemType string, md Metadata) (ChangeEvent, error) {
	o, err := ParseOperation(op)
	if err == nil {
		var it ItemType
		if it, err = ParseItemType(itemType); err == nil {
			return b.emit(o, it, md), nil
		}
	}
	b.logger.Warn().
		Err(err).
		Str("operation", op).
		Str("itemType", itemType).
		Str("path", md.Path).
		Msg("rejected change event")
	return ChangeEvent{}, err
}

// Emit publishes a typed change.
func (b *Bus) Emit(c Change) ChangeEvent {
	return b.emit(c.Operation(), c.ItemType(), c.metadata())
}

func (b *Bus) emit(op Operation, it ItemType, md Metadata) ChangeEvent {
	ev := b.build(op, it, md)

	b.mu.Lock()
	b.history.push(ev)
	pub := b.pub
	b.mu.Unlock()

	var l *zerolog.Event
	if op == OpDelete {
		l = b.logger.Warn()
	} else {
		l = b.logger.Info()
	}
	l.Str("type", ev.Event.Type).
		Str("source", string(ev.Event.Source)).
		Str("space", ev.Space.Name).
		Str("path", ev.Item.Path).
		Msg("change")

	if pub != nil {
		if err := pub.Emit(Channel, ev); err != nil {
			b.logger.Warn().Err(err).Str("id", ev.Event.ID).Msg("publish failed")
		}
	}
	b.listeners.notify(ev, b.logger)
	return ev
}

func (b *Bus) build(op Operation, it ItemType, md Metadata) ChangeEvent {
	now := b.now()
	rel := strings.Trim(path.Clean("/"+strings.ReplaceAll(md.Path, "\\", "/")), "/")
	if md.Source == "" {
		md.Source = SourceAPI
	}
	if md.Name == "" && rel != "" {
		md.Name = path.Base(rel)
	}
	if md.ParentPath == "" {
		if d := path.Dir(rel); d != "." {
			md.ParentPath = d
		}
	}
	if md.Changed.IsZero() {
		md.Changed = now
	}
	spaceName := md.SpaceName
	if spaceName == "" {
		spaceName = md.SpaceID
	}
	return ChangeEvent{
		Event: EventInfo{
			ID:        b.newID(),
			Timestamp: now,
			Type:      TypeOf(it, op),
			Operation: op,
			ItemType:  it,
			Source:    md.Source,
		},
		Space: SpaceRef{ID: md.SpaceID, Name: spaceName},
		Item: Item{
			Name:       md.Name,
			Path:       rel,
			ParentPath: md.ParentPath,
			Type:       it,
			Size:       md.Size,
			Created:    md.Created,
			Modified:   md.Modified,
		},
		Context: Context{FullPath: md.FullPath, Changed: md.Changed},
	}
}

// Subscribe registers fn for eventType: "*", an operation ("delete"), an item
// type ("folder") or a combined type ("file:create"). The returned function
// unsubscribes and is safe to call more than once.
func (b *Bus) Subscribe(eventType string, fn func(ChangeEvent)) (unsubscribe func()) {
	return b.listeners.add(eventType, fn)
}

// Recent returns up to limit events, newest first. A non-positive limit
// returns the whole history.
func (b *Bus) Recent(limit int) []ChangeEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.history.newest(limit)
}

// Snapshot returns the whole history, oldest first.
func (b *Bus) Snapshot() []ChangeEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.history.all()
}

// Restore replaces the history with evs (oldest first), keeping the newest
// entries that fit.
func (b *Bus) Restore(evs []ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history.reset()
	for _, ev := range evs {
		b.history.push(ev)
	}
}

// Clear empties the history and returns how many events were dropped.
func (b *Bus) Clear() int {
	b.mu.Lock()
	n := b.history.len()
	b.history.reset()
	b.mu.Unlock()
	b.logger.Info().Int("events", n).Msg("history cleared")
	return n
}

// Stats aggregates the retained history.
type Stats struct {
	Total       int            `json:"total"`
	Capacity    int            `json:"capacity"`
	ByOperation map[string]int `json:"byOperation"`
	ByItemType  map[string]int `json:"byItemType"`
	BySource    map[string]int `json:"bySource"`
	BySpace     map[string]int `json:"bySpace"`
	Oldest      *time.Time     `json:"oldest,omitempty"`
	Newest      *time.Time     `json:"newest,omitempty"`
	Listeners   int            `json:"listeners"`
}

func (b *Bus) Stats() Stats {
	b.mu.RLock()
	evs := b.history.all()
	capacity := b.history.cap()
	b.mu.RUnlock()

	st := Stats{
		Total:       len(evs),
		Capacity:    capacity,
		ByOperation: make(map[string]int),
		ByItemType:  make(map[string]int),
		BySource:    make(map[string]int),
		BySpace:     make(map[string]int),
		Listeners:   b.listeners.len(),
	}
	for _, ev := range evs {
		st.ByOperation[string(ev.Event.Operation)]++
		st.ByItemType[string(ev.Event.ItemType)]++
		st.BySource[string(ev.Event.Source)]++
		st.BySpace[ev.Space.Name]++
	}
	if len(evs) > 0 {
		oldest, newest := evs[0].Event.Timestamp, evs[len(evs)-1].Event.Timestamp
		st.Oldest, st.Newest = &oldest, &newest
	}
	return st
}
