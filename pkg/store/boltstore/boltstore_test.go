package boltstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/saylorsolutions/drivelock/pkg/drive"
	"github.com/saylorsolutions/drivelock/pkg/drive/drivetest"
	"github.com/saylorsolutions/drivelock/pkg/passlock"
	"github.com/saylorsolutions/drivelock/pkg/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "drivelock.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store, path
}

func TestStore(t *testing.T) {
	drivetest.RunStoreTests(t, func(t *testing.T) drive.Store {
		store, _ := openTemp(t)
		return store
	})
}

func TestStore_ListOrder(t *testing.T) {
	ctx := context.Background()
	store, _ := openTemp(t)
	root, err := store.Root(ctx)
	require.NoError(t, err)

	var want []drive.ID
	for _, title := range []string{"c", "a", "b"} {
		item, err := store.Create(ctx, root.ID, title, false, nil, nil)
		require.NoError(t, err)
		want = append(want, item.ID)
	}
	items, err := store.List(ctx, root.ID)
	require.NoError(t, err)
	var got []drive.ID
	for _, item := range items {
		got = append(got, item.ID)
	}
	assert.Equal(t, want, got)
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "drivelock.db")
	store, err := Open(path)
	require.NoError(t, err)

	root, err := store.Root(ctx)
	require.NoError(t, err)
	folder, err := store.Create(ctx, root.ID, "folder", true, map[string]string{"a": "1"}, nil)
	require.NoError(t, err)
	file, err := store.Create(ctx, folder.ID, "file", false, nil, []byte("body"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer func() {
		_ = store.Close()
	}()
	reopened, err := store.Root(ctx)
	require.NoError(t, err)
	assert.Equal(t, root.ID, reopened.ID)

	got, err := store.Get(ctx, folder.ID)
	require.NoError(t, err)
	assert.Equal(t, folder, got)
	body, err := store.Read(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "body", string(body))
}

func TestStore_Locked(t *testing.T) {
	_, path := openTemp(t)
	_, err := Open(path, WithTimeout(50*time.Millisecond))
	assert.Error(t, err, "Open should time out while another handle holds the file")
}

func TestStore_Settings(t *testing.T) {
	store, _ := openTemp(t)
	_, err := store.LoadSettings()
	assert.ErrorIs(t, err, ErrNoSettings)

	gen, err := passlock.NewKeyGenerator(passlock.SetIterations(20_000), passlock.SetHash(passlock.HashSHA256))
	require.NoError(t, err)
	require.NoError(t, store.SaveSettings(gen))

	loaded, err := store.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, gen, loaded)
}

func TestStore_EncryptedDrive(t *testing.T) {
	ctx := context.Background()
	store, _ := openTemp(t)
	v, err := vault.New(nil)
	require.NoError(t, err)
	d := drive.New(store, v)
	_, err = d.InitRoot(ctx, "drivelock")
	require.NoError(t, err)
	require.NoError(t, d.SetPassword(ctx, passlock.Passphrase("correct-horse")))

	file, err := d.Put(ctx, "docs/budget.txt", []byte("rent: 1200"))
	require.NoError(t, err)
	raw, err := store.Get(ctx, file.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "budget.txt", raw.Title)

	entry, err := d.Resolve(ctx, "docs/budget.txt")
	require.NoError(t, err)
	content, err := d.ReadFile(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "rent: 1200", string(content))
}
