// Package events normalizes filesystem and API mutations into one canonical
// ChangeEvent, keeps a bounded history of them and fans them out to the
// real-time transport and in-process listeners.
package events

import (
	"errors"
	"fmt"
	"time"
)

// Channel is the real-time channel every change is published on.
const Channel = "wiki:change"

// ErrInvalidChange is returned when an operation or item type is not one of
// the known values.
var ErrInvalidChange = errors.New("invalid change")

type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

type ItemType string

const (
	ItemFile   ItemType = "file"
	ItemFolder ItemType = "folder"
)

// Source names the producer of a change.
type Source string

const (
	SourceWatcher Source = "watcher"
	SourceAPI     Source = "api"
)

// ParseOperation validates s as an Operation.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OpCreate, OpUpdate, OpDelete:
		return op, nil
	}
	return "", fmt.Errorf("%w: operation %q", ErrInvalidChange, s)
}

// ParseItemType validates s as an ItemType.
func ParseItemType(s string) (ItemType, error) {
	switch it := ItemType(s); it {
	case ItemFile, ItemFolder:
		return it, nil
	}
	return "", fmt.Errorf("%w: item type %q", ErrInvalidChange, s)
}

// TypeOf is the combined event type "<itemType>:<operation>".
func TypeOf(it ItemType, op Operation) string {
	return string(it) + ":" + string(op)
}

// Metadata is the free-form description of a change supplied by producers.
// Only Path is required; the rest is defaulted when empty.
type Metadata struct {
	Source     Source     `json:"source,omitempty"`
	SpaceID    string     `json:"spaceId,omitempty"`
	SpaceName  string     `json:"spaceName,omitempty"`
	Name       string     `json:"name,omitempty"`
	Path       string     `json:"path"`
	ParentPath string     `json:"parentPath,omitempty"`
	FullPath   string     `json:"fullPath,omitempty"`
	Size       *int64     `json:"size,omitempty"`
	Created    *time.Time `json:"created,omitempty"`
	Modified   *time.Time `json:"modified,omitempty"`
	Changed    time.Time  `json:"changed,omitzero"`
}

type EventInfo struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Operation Operation `json:"operation"`
	ItemType  ItemType  `json:"itemType"`
	Source    Source    `json:"source"`
}

type SpaceRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Item struct {
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	ParentPath string     `json:"parentPath"`
	Type       ItemType   `json:"type"`
	Size       *int64     `json:"size,omitempty"`
	Created    *time.Time `json:"created,omitempty"`
	Modified   *time.Time `json:"modified,omitempty"`
}

type Context struct {
	FullPath string    `json:"fullPath"`
	Changed  time.Time `json:"changed"`
}

// ChangeEvent is the canonical broadcast payload. It is never mutated after
// the bus builds it.
type ChangeEvent struct {
	Event   EventInfo `json:"event"`
	Space   SpaceRef  `json:"space"`
	Item    Item      `json:"item"`
	Context Context   `json:"context"`
}

func (e ChangeEvent) valid() bool {
	return e.Event.ID != "" && !e.Event.Timestamp.IsZero()
}
