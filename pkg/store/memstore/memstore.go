// Package memstore provides a drive.Store held in memory.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/saylorsolutions/drivelock/pkg/drive"
)

var _ drive.Store = (*Store)(nil)

type node struct {
	item     drive.Item
	body     []byte
	children []drive.ID
}

// Store is a goroutine safe drive.Store. Items are returned as copies.
type Store struct {
	mu    sync.RWMutex
	root  drive.ID
	items map[drive.ID]*node
}

// New creates an empty Store with only a root folder.
func New() *Store {
	root := drive.ID(uuid.NewString())
	return &Store{
		root: root,
		items: map[drive.ID]*node{
			root: {item: drive.Item{ID: root, IsFolder: true, Metadata: map[string]string{}}},
		},
	}
}

func copyItem(item drive.Item) drive.Item {
	item.Metadata = maps.Clone(item.Metadata)
	return item
}

// lookup must be called with mu held.
func (s *Store) lookup(id drive.ID) (*node, error) {
	n, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", drive.ErrNotFound, id)
	}
	return n, nil
}

func (s *Store) Root(ctx context.Context) (drive.Item, error) {
	return s.Get(ctx, s.root)
}

func (s *Store) Get(ctx context.Context, id drive.ID) (drive.Item, error) {
	if err := ctx.Err(); err != nil {
		return drive.Item{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := s.lookup(id)
	if err != nil {
		return drive.Item{}, err
	}
	return copyItem(n.item), nil
}

func (s *Store) List(ctx context.Context, folder drive.ID) ([]drive.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := s.lookup(folder)
	if err != nil {
		return nil, err
	}
	if !n.item.IsFolder {
		return nil, drive.ErrNotFolder
	}
	items := make([]drive.Item, len(n.children))
	for i, id := range n.children {
		items[i] = copyItem(s.items[id].item)
	}
	return items, nil
}

func (s *Store) Create(ctx context.Context, folder drive.ID, title string, isFolder bool, meta map[string]string, body []byte) (drive.Item, error) {
	if err := ctx.Err(); err != nil {
		return drive.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, err := s.lookup(folder)
	if err != nil {
		return drive.Item{}, err
	}
	if !parent.item.IsFolder {
		return drive.Item{}, drive.ErrNotFolder
	}
	n := &node{
		item: drive.Item{
			ID:       drive.ID(uuid.NewString()),
			Parent:   folder,
			Title:    title,
			IsFolder: isFolder,
			Metadata: drive.MergeMetadata(nil, meta),
		},
	}
	if !isFolder {
		n.body = bytes.Clone(body)
	}
	s.items[n.item.ID] = n
	parent.children = append(parent.children, n.item.ID)
	return copyItem(n.item), nil
}

func (s *Store) Read(ctx context.Context, id drive.ID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if n.item.IsFolder {
		return nil, drive.ErrIsFolder
	}
	return bytes.Clone(n.body), nil
}

func (s *Store) Write(ctx context.Context, id drive.ID, body []byte, meta map[string]string) (drive.Item, error) {
	if err := ctx.Err(); err != nil {
		return drive.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.lookup(id)
	if err != nil {
		return drive.Item{}, err
	}
	if n.item.IsFolder {
		return drive.Item{}, drive.ErrIsFolder
	}
	n.body = bytes.Clone(body)
	n.item.Metadata = drive.MergeMetadata(n.item.Metadata, meta)
	return copyItem(n.item), nil
}

func (s *Store) Rename(ctx context.Context, id drive.ID, title string, meta map[string]string) (drive.Item, error) {
	if err := ctx.Err(); err != nil {
		return drive.Item{}, err
	}
	if id == s.root {
		return drive.Item{}, drive.ErrRootItem
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.lookup(id)
	if err != nil {
		return drive.Item{}, err
	}
	n.item.Title = title
	n.item.Metadata = drive.MergeMetadata(n.item.Metadata, meta)
	return copyItem(n.item), nil
}

func (s *Store) UpdateMetadata(ctx context.Context, id drive.ID, meta map[string]string) (drive.Item, error) {
	if err := ctx.Err(); err != nil {
		return drive.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.lookup(id)
	if err != nil {
		return drive.Item{}, err
	}
	n.item.Metadata = drive.MergeMetadata(n.item.Metadata, meta)
	return copyItem(n.item), nil
}

func (s *Store) Delete(ctx context.Context, id drive.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == s.root {
		return drive.ErrRootItem
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.lookup(id)
	if err != nil {
		return err
	}
	if parent, ok := s.items[n.item.Parent]; ok {
		parent.children = slices.DeleteFunc(parent.children, func(child drive.ID) bool {
			return child == id
		})
	}
	s.deleteTree(n)
	return nil
}

// deleteTree must be called with mu held.
func (s *Store) deleteTree(n *node) {
	for _, child := range n.children {
		if c, ok := s.items[child]; ok {
			s.deleteTree(c)
		}
	}
	delete(s.items, n.item.ID)
}

// Len returns the number of items in the Store, including the root.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
