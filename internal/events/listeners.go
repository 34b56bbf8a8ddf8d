package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// Wildcard subscribes to every event.
const Wildcard = "*"

type listener struct {
	id uint64
	fn func(ChangeEvent)
}

type registry struct {
	mu     sync.RWMutex
	nextID uint64
	byType map[string][]listener
}

func (r *registry) add(eventType string, fn func(ChangeEvent)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byType == nil {
		r.byType = make(map[string][]listener)
	}
	r.nextID++
	id := r.nextID
	r.byType[eventType] = append(r.byType[eventType], listener{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(eventType, id) })
	}
}

func (r *registry) remove(eventType string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ls := r.byType[eventType]
	for i, l := range ls {
		if l.id == id {
			ls = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if len(ls) == 0 {
		delete(r.byType, eventType)
		return
	}
	r.byType[eventType] = ls
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, ls := range r.byType {
		n += len(ls)
	}
	return n
}

// notify calls every listener matching ev outside the lock. A panicking
// listener is logged and does not affect the others.
func (r *registry) notify(ev ChangeEvent, logger zerolog.Logger) {
	r.mu.RLock()
	var targets []listener
	for _, key := range []string{Wildcard, string(ev.Event.Operation), string(ev.Event.ItemType), ev.Event.Type} {
		targets = append(targets, r.byType[key]...)
	}
	r.mu.RUnlock()

	for _, l := range targets {
		func() {
			defer func() {
				if v := recover(); v != nil {
					logger.Error().Interface("panic", v).Str("type", ev.Event.Type).Msg("listener panicked")
				}
			}()
			l.fn(ev)
		}()
	}
}
