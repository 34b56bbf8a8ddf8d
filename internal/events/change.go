package events

import "fmt"

// Change is a settled mutation whose operation and item type are fixed by
// its Go type, so an invalid combination cannot be constructed.
type Change interface {
	Operation() Operation
	ItemType() ItemType
	metadata() Metadata
}

type FileCreated struct{ Meta Metadata }
type FileUpdated struct{ Meta Metadata }
type FileDeleted struct{ Meta Metadata }
type FolderCreated struct{ Meta Metadata }
type FolderUpdated struct{ Meta Metadata }
type FolderDeleted struct{ Meta Metadata }

func (FileCreated) Operation() Operation   { return OpCreate }
func (FileUpdated) Operation() Operation   { return OpUpdate }
func (FileDeleted) Operation() Operation   { return OpDelete }
func (FolderCreated) Operation() Operation { return OpCreate }
func (FolderUpdated) Operation() Operation { return OpUpdate }
func (FolderDeleted) Operation() Operation { return OpDelete }

func (FileCreated) ItemType() ItemType   { return ItemFile }
func (FileUpdated) ItemType() ItemType   { return ItemFile }
func (FileDeleted) ItemType() ItemType   { return ItemFile }
func (FolderCreated) ItemType() ItemType { return ItemFolder }
func (FolderUpdated) ItemType() ItemType { return ItemFolder }
func (FolderDeleted) ItemType() ItemType { return ItemFolder }

func (c FileCreated) metadata() Metadata   { return c.Meta }
func (c FileUpdated) metadata() Metadata   { return c.Meta }
func (c FileDeleted) metadata() Metadata   { return c.Meta }
func (c FolderCreated) metadata() Metadata { return c.Meta }
func (c FolderUpdated) metadata() Metadata { return c.Meta }
func (c FolderDeleted) metadata() Metadata { return c.Meta }

// NewChange returns the typed Change for op and it.
func NewChange(op Operation, it ItemType, md Metadata) (Change, error) {
	switch {
	case it == ItemFile && op == OpCreate:
		return FileCreated{md}, nil
	case it == ItemFile && op == OpUpdate:
		return FileUpdated{md}, nil
	case it == ItemFile && op == OpDelete:
		return FileDeleted{md}, nil
	case it == ItemFolder && op == OpCreate:
		return FolderCreated{md}, nil
	case it == ItemFolder && op == OpUpdate:
		return FolderUpdated{md}, nil
	case it == ItemFolder && op == OpDelete:
		return FolderDeleted{md}, nil
	}
	if _, err := ParseOperation(string(op)); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: item type %q", ErrInvalidChange, it)
}
