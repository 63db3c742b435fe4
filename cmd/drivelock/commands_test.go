package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/saylorsolutions/drivelock/pkg/drive"
	"github.com/saylorsolutions/drivelock/pkg/envelope"
	"github.com/saylorsolutions/drivelock/pkg/passlock"
	"github.com/saylorsolutions/drivelock/pkg/store/boltstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCLI struct {
	*cli
	out bytes.Buffer
}

func newTestCLI(t *testing.T, storePath, password string) *testCLI {
	t.Helper()
	cfg := defaultConfig()
	cfg.Store = storePath
	tc := &testCLI{}
	tc.cli = &cli{
		cfg:    cfg,
		log:    zerolog.Nop(),
		stdin:  strings.NewReader(""),
		stdout: &tc.out,
		getPassword: func(bool) (passlock.Passphrase, error) {
			return passlock.Passphrase(password), nil
		},
	}
	return tc
}

func (tc *testCLI) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()
	tc.out.Reset()
	err := tc.run(context.Background(), args)
	return tc.out.String(), err
}

func TestCLI_Session(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "drivelock.db")
	tc := newTestCLI(t, storePath, "correct-horse")

	out, err := tc.exec(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Created password")
	out, err = tc.exec(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Password accepted")

	tc.stdin = strings.NewReader("rent: 1200")
	_, err = tc.exec(t, "put", "docs/budget.txt")
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("remember"), 0600))
	_, err = tc.exec(t, "put", "notes.txt", src)
	require.NoError(t, err)
	_, err = tc.exec(t, "mkdir", "archive/2023")
	require.NoError(t, err)

	out, err = tc.exec(t, "ls")
	require.NoError(t, err)
	assert.Equal(t, "d docs\n- notes.txt\nd archive\n", out)
	out, err = tc.exec(t, "ls", "docs/budget.txt")
	require.NoError(t, err)
	assert.Equal(t, "- budget.txt\n", out)

	out, err = tc.exec(t, "get", "docs/budget.txt")
	require.NoError(t, err)
	assert.Equal(t, "rent: 1200", out)

	_, err = tc.exec(t, "mv", "docs/budget.txt", "archive/budget.txt")
	assert.ErrorIs(t, err, drive.ErrInvalidName, "mv renames in place, it doesn't move between folders")
	_, err = tc.exec(t, "mv", "docs/budget.txt", "budget-2024.txt")
	require.NoError(t, err)
	dst := filepath.Join(t.TempDir(), "out.txt")
	_, err = tc.exec(t, "get", "docs/budget-2024.txt", dst)
	require.NoError(t, err)
	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "rent: 1200", string(content))

	_, err = tc.exec(t, "rm", "notes.txt", "archive")
	require.NoError(t, err)
	out, err = tc.exec(t, "ls")
	require.NoError(t, err)
	assert.Equal(t, "d docs\n", out)

	_, err = tc.exec(t, "get", "missing.txt")
	assert.Error(t, err)
	_, err = tc.exec(t, "rm", "/")
	assert.Error(t, err)

	store, err := boltstore.Open(storePath)
	require.NoError(t, err)
	_, err = store.LoadSettings()
	assert.NoError(t, err, "Key generator settings should be saved on first use")
	require.NoError(t, store.Close())
}

func TestCLI_WrongPassword(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "drivelock.db")
	tc := newTestCLI(t, storePath, "correct-horse")
	tc.stdin = strings.NewReader("rent: 1200")
	_, err := tc.exec(t, "put", "budget.txt")
	require.NoError(t, err)

	wrong := newTestCLI(t, storePath, "wrong-horse")
	_, err = wrong.exec(t, "get", "budget.txt")
	assert.ErrorIs(t, err, envelope.ErrAuthentication)
	_, err = wrong.exec(t, "ls")
	assert.ErrorIs(t, err, envelope.ErrAuthentication)
}

func TestCLI_Reset(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "drivelock.db")
	tc := newTestCLI(t, storePath, "correct-horse")
	tc.stdin = strings.NewReader("rent: 1200")
	_, err := tc.exec(t, "put", "budget.txt")
	require.NoError(t, err)

	_, err = tc.exec(t, "reset")
	assert.Error(t, err, "Reset must be confirmed")
	tc.yes = true
	out, err := tc.exec(t, "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Reset root")

	other := newTestCLI(t, storePath, "new-password")
	out, err = other.exec(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Created password")
	out, err = other.exec(t, "ls")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCLI_Plaintext(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "drivelock.db")
	tc := newTestCLI(t, storePath, "")
	tc.cfg.Plaintext = true
	tc.getPassword = func(bool) (passlock.Passphrase, error) {
		t.Fatal("Plaintext mode shouldn't ask for a password")
		return nil, nil
	}

	out, err := tc.exec(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "plaintext")
	tc.stdin = strings.NewReader("hello")
	_, err = tc.exec(t, "put", "hello.txt")
	require.NoError(t, err)
	out, err = tc.exec(t, "get", "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestCLI_Usage(t *testing.T) {
	tc := newTestCLI(t, filepath.Join(t.TempDir(), "drivelock.db"), "correct-horse")
	_, err := tc.exec(t)
	assert.Error(t, err)
	_, err = tc.exec(t, "explode")
	assert.ErrorContains(t, err, "unknown command")
	_, err = tc.exec(t, "mv", "only-one")
	assert.ErrorContains(t, err, "usage: drivelock mv")
}
