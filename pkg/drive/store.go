package drive

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("item not found")
	ErrNotFolder    = errors.New("item is not a folder")
	ErrIsFolder     = errors.New("item is a folder")
	ErrNameConflict = errors.New("an item with that name already exists")
	ErrNoRoot       = errors.New("app root is not initialized")
	ErrNoPolicy     = errors.New("no encryption policy configured")
	ErrRootItem     = errors.New("the store root cannot be changed")
	ErrInvalidName  = errors.New("invalid item name")
)

// ID identifies an item in a Store.
type ID string

// Item is the store's view of a file or folder.
type Item struct {
	ID       ID
	Parent   ID
	Title    string
	IsFolder bool
	Metadata map[string]string
}

// Store is a hierarchical object store holding titled items with string metadata.
//
// Metadata passed to Create, Write, Rename, and UpdateMetadata is merged into the item's existing metadata.
// A key with an empty value is removed instead.
// Deleting a folder deletes everything below it.
type Store interface {
	// Root returns the top level folder of the store.
	Root(ctx context.Context) (Item, error)
	// Get returns the current state of an item.
	Get(ctx context.Context, id ID) (Item, error)
	// List returns the direct children of a folder.
	List(ctx context.Context, folder ID) ([]Item, error)
	// Create adds a file or folder below folder. Body is ignored for folders.
	Create(ctx context.Context, folder ID, title string, isFolder bool, meta map[string]string, body []byte) (Item, error)
	// Read returns the body of a file.
	Read(ctx context.Context, id ID) ([]byte, error)
	// Write replaces the body of a file and merges meta.
	Write(ctx context.Context, id ID, body []byte, meta map[string]string) (Item, error)
	// Rename changes the title of an item and merges meta.
	Rename(ctx context.Context, id ID, title string, meta map[string]string) (Item, error)
	// UpdateMetadata merges meta into the item's metadata.
	UpdateMetadata(ctx context.Context, id ID, meta map[string]string) (Item, error)
	// Delete removes an item.
	Delete(ctx context.Context, id ID) error
}

// MergeMetadata applies the Store metadata merge rules to dst, and returns it.
// A nil dst is allocated.
func MergeMetadata(dst map[string]string, updates map[string]string) map[string]string {
	if dst == nil {
		dst = make(map[string]string, len(updates))
	}
	for k, v := range updates {
		if len(v) == 0 {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
	return dst
}
