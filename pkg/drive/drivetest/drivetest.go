// Package drivetest holds a conformance suite for drive.Store implementations.
package drivetest

import (
	"context"
	"testing"

	"github.com/saylorsolutions/drivelock/pkg/drive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreTests exercises the drive.Store contract against stores created by newStore.
// Each subtest gets its own store.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) drive.Store) {
	tests := map[string]func(t *testing.T, ctx context.Context, store drive.Store, root drive.Item){
		"Root is an empty folder": func(t *testing.T, ctx context.Context, store drive.Store, root drive.Item) {
			assert.True(t, root.IsFolder)
			assert.NotEmpty(t, root.ID)
			items, err := store.List(ctx, root.ID)
			require.NoError(t, err)
			assert.Empty(t, items)
		},
		"Create and list": func(t *testing.T, ctx context.Context, store drive.Store, root drive.Item) {
			folder, err := store.Create(ctx, root.ID, "folder", true, map[string]string{"a": "1"}, nil)
			require.NoError(t, err)
			assert.True(t, folder.IsFolder)
			assert.Equal(t, root.ID, folder.Parent)
			assert.Equal(t, "folder", folder.Title)
			assert.Equal(t, map[string]string{"a": "1"}, folder.Metadata)

			file, err := store.Create(ctx, root.ID, "file", false, nil, []byte("body"))
			require.NoError(t, err)
			assert.False(t, file.IsFolder)
			assert.NotEqual(t, folder.ID, file.ID)

			nested, err := store.Create(ctx, folder.ID, "nested", false, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, folder.ID, nested.Parent)

			items, err := store.List(ctx, root.ID)
			require.NoError(t, err)
			var ids []drive.ID
			for _, item := range items {
				ids = append(ids, item.ID)
			}
			assert.ElementsMatch(t, []drive.ID{folder.ID, file.ID}, ids)

			items, err = store.List(ctx, folder.ID)
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, nested.ID, items[0].ID)

			body, err := store.Read(ctx, file.ID)
			require.NoError(t, err)
			assert.Equal(t, "body", string(body))

			body, err = store.Read(ctx, nested.ID)
			require.NoError(t, err)
			assert.Empty(t, body)
		},
		"Write replaces body and merges metadata": func(t *testing.T, ctx context.Context, store drive.Store, root drive.Item) {
			file, err := store.Create(ctx, root.ID, "file", false, map[string]string{"keep": "1", "drop": "2"}, []byte("first"))
			require.NoError(t, err)

			updated, err := store.Write(ctx, file.ID, []byte("second"), map[string]string{"drop": "", "add": "3"})
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"keep": "1", "add": "3"}, updated.Metadata)

			body, err := store.Read(ctx, file.ID)
			require.NoError(t, err)
			assert.Equal(t, "second", string(body))

			got, err := store.Get(ctx, file.ID)
			require.NoError(t, err)
			assert.Equal(t, updated, got)
		},
		"Rename and update metadata": func(t *testing.T, ctx context.Context, store drive.Store, root drive.Item) {
			file, err := store.Create(ctx, root.ID, "before", false, map[string]string{"a": "1"}, []byte("body"))
			require.NoError(t, err)

			renamed, err := store.Rename(ctx, file.ID, "after", map[string]string{"b": "2"})
			require.NoError(t, err)
			assert.Equal(t, "after", renamed.Title)
			assert.Equal(t, map[string]string{"a": "1", "b": "2"}, renamed.Metadata)

			updated, err := store.UpdateMetadata(ctx, file.ID, map[string]string{"a": ""})
			require.NoError(t, err)
			assert.Equal(t, "after", updated.Title)
			assert.Equal(t, map[string]string{"b": "2"}, updated.Metadata)

			body, err := store.Read(ctx, file.ID)
			require.NoError(t, err)
			assert.Equal(t, "body", string(body), "Body should be untouched")

			rootUpdated, err := store.UpdateMetadata(ctx, root.ID, map[string]string{"salt": "c2FsdA=="})
			require.NoError(t, err)
			assert.Equal(t, "c2FsdA==", rootUpdated.Metadata["salt"])
		},
		"Returned items are copies": func(t *testing.T, ctx context.Context, store drive.Store, root drive.Item) {
			file, err := store.Create(ctx, root.ID, "file", false, map[string]string{"a": "1"}, nil)
			require.NoError(t, err)
			file.Metadata["a"] = "changed"

			got, err := store.Get(ctx, file.ID)
			require.NoError(t, err)
			assert.Equal(t, "1", got.Metadata["a"])
		},
		"Delete removes descendants": func(t *testing.T, ctx context.Context, store drive.Store, root drive.Item) {
			folder, err := store.Create(ctx, root.ID, "folder", true, nil, nil)
			require.NoError(t, err)
			sub, err := store.Create(ctx, folder.ID, "sub", true, nil, nil)
			require.NoError(t, err)
			file, err := store.Create(ctx, sub.ID, "file", false, nil, []byte("body"))
			require.NoError(t, err)
			other, err := store.Create(ctx, root.ID, "other", false, nil, nil)
			require.NoError(t, err)

			require.NoError(t, store.Delete(ctx, folder.ID))
			for _, id := range []drive.ID{folder.ID, sub.ID, file.ID} {
				_, err := store.Get(ctx, id)
				assert.ErrorIs(t, err, drive.ErrNotFound)
			}
			_, err = store.Read(ctx, file.ID)
			assert.ErrorIs(t, err, drive.ErrNotFound)

			items, err := store.List(ctx, root.ID)
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, other.ID, items[0].ID)

			assert.ErrorIs(t, store.Delete(ctx, folder.ID), drive.ErrNotFound)
		},
		"Invalid operations": func(t *testing.T, ctx context.Context, store drive.Store, root drive.Item) {
			file, err := store.Create(ctx, root.ID, "file", false, nil, nil)
			require.NoError(t, err)
			folder, err := store.Create(ctx, root.ID, "folder", true, nil, nil)
			require.NoError(t, err)

			_, err = store.Create(ctx, file.ID, "child", false, nil, nil)
			assert.ErrorIs(t, err, drive.ErrNotFolder)
			_, err = store.List(ctx, file.ID)
			assert.ErrorIs(t, err, drive.ErrNotFolder)
			_, err = store.Read(ctx, folder.ID)
			assert.ErrorIs(t, err, drive.ErrIsFolder)
			_, err = store.Write(ctx, folder.ID, []byte("body"), nil)
			assert.ErrorIs(t, err, drive.ErrIsFolder)
			_, err = store.Get(ctx, "missing")
			assert.ErrorIs(t, err, drive.ErrNotFound)
			_, err = store.Create(ctx, "missing", "child", false, nil, nil)
			assert.ErrorIs(t, err, drive.ErrNotFound)
			assert.ErrorIs(t, store.Delete(ctx, root.ID), drive.ErrRootItem)
			_, err = store.Rename(ctx, root.ID, "root", nil)
			assert.ErrorIs(t, err, drive.ErrRootItem)
		},
		"Cancelled context": func(t *testing.T, _ context.Context, store drive.Store, root drive.Item) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := store.Create(ctx, root.ID, "file", false, nil, nil)
			assert.ErrorIs(t, err, context.Canceled)
			_, err = store.List(ctx, root.ID)
			assert.ErrorIs(t, err, context.Canceled)
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			root, err := store.Root(ctx)
			require.NoError(t, err)
			tc(t, ctx, store, root)
		})
	}
}
