package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/saylorsolutions/drivelock/cmd/internal"
	"github.com/saylorsolutions/drivelock/pkg/drive"
	"github.com/saylorsolutions/drivelock/pkg/passlock"
	"github.com/saylorsolutions/drivelock/pkg/store/boltstore"
	"github.com/saylorsolutions/drivelock/pkg/vault"
)

type cli struct {
	cfg         Config
	yes         bool
	log         zerolog.Logger
	stdin       io.Reader
	stdout      io.Writer
	getPassword func(confirm bool) (passlock.Passphrase, error)
}

type command struct {
	usage   string
	minArgs int
	maxArgs int
	unlock  bool
	run     func(ctx context.Context, c *cli, d *drive.Drive, args []string) error
}

func commandTable() map[string]command {
	return map[string]command{
		"init":  {usage: "init", run: cmdInit},
		"ls":    {usage: "ls [PATH]", maxArgs: 1, unlock: true, run: cmdList},
		"mkdir": {usage: "mkdir PATH", minArgs: 1, maxArgs: 1, unlock: true, run: cmdMkdir},
		"put":   {usage: "put PATH [FILE]", minArgs: 1, maxArgs: 2, unlock: true, run: cmdPut},
		"get":   {usage: "get PATH [FILE]", minArgs: 1, maxArgs: 2, unlock: true, run: cmdGet},
		"mv":    {usage: "mv PATH NEWNAME", minArgs: 2, maxArgs: 2, unlock: true, run: cmdMove},
		"rm":    {usage: "rm PATH...", minArgs: 1, maxArgs: -1, unlock: true, run: cmdRemove},
		"reset": {usage: "reset", run: cmdReset},
	}
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND argument")
	}
	name, args := args[0], args[1:]
	cmd, ok := commandTable()[name]
	if !ok {
		return fmt.Errorf("unknown command '%s'", name)
	}
	if len(args) < cmd.minArgs || (cmd.maxArgs >= 0 && len(args) > cmd.maxArgs) {
		return fmt.Errorf("usage: drivelock %s", cmd.usage)
	}

	store, err := boltstore.Open(c.cfg.Store, boltstore.WithLogger(c.log))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			c.log.Error().Err(err).Msg("Failed to close store")
		}
	}()
	d, err := c.openDrive(ctx, store)
	if err != nil {
		return err
	}
	if cmd.unlock {
		if err := c.unlock(ctx, d); err != nil {
			return err
		}
	}
	return cmd.run(ctx, c, d, args)
}

func (c *cli) keyGenerator(store *boltstore.Store) (*passlock.KeyGenerator, error) {
	gen, err := store.LoadSettings()
	if err == nil {
		return gen, nil
	}
	if !errors.Is(err, boltstore.ErrNoSettings) {
		return nil, err
	}
	opts, err := c.cfg.generatorOpts()
	if err != nil {
		return nil, err
	}
	gen, err = passlock.NewKeyGenerator(opts...)
	if err != nil {
		return nil, err
	}
	if err := store.SaveSettings(gen); err != nil {
		return nil, fmt.Errorf("failed to save key generator settings: %w", err)
	}
	c.log.Info().Str("algorithm", gen.Algorithm().String()).Uint64("iterations", gen.Iterations()).Msg("Saved key generator settings")
	return gen, nil
}

func (c *cli) openDrive(ctx context.Context, store *boltstore.Store) (*drive.Drive, error) {
	var policy drive.Policy
	if !c.cfg.Plaintext {
		gen, err := c.keyGenerator(store)
		if err != nil {
			return nil, err
		}
		v, err := vault.New(gen)
		if err != nil {
			return nil, err
		}
		policy = v
	}
	d := drive.New(store, policy, drive.WithLogger(c.log))
	if _, err := d.InitRoot(ctx, c.cfg.Root); err != nil {
		return nil, err
	}
	return d, nil
}

func (c *cli) unlock(ctx context.Context, d *drive.Drive) error {
	if !d.Encrypted() {
		return nil
	}
	pass, err := c.getPassword(d.NeedNewPassword())
	if err != nil {
		return err
	}
	defer passlock.Wipe(pass)
	return d.SetPassword(ctx, pass)
}

// resolveItem resolves path to an item other than the app root.
func resolveItem(ctx context.Context, d *drive.Drive, path string) (drive.Entry, error) {
	if len(drive.SplitPath(path)) == 0 {
		return drive.Entry{}, errors.New("path must name an item below the root")
	}
	entry, err := d.Resolve(ctx, path)
	if err != nil {
		return drive.Entry{}, fmt.Errorf("%s: %w", path, err)
	}
	return entry, nil
}

func cmdInit(ctx context.Context, c *cli, d *drive.Drive, _ []string) error {
	if !d.Encrypted() {
		internal.Fecho(c.stdout, "Initialized plaintext root '%s'", c.cfg.Root)
		return nil
	}
	created := d.NeedNewPassword()
	if err := c.unlock(ctx, d); err != nil {
		return err
	}
	if created {
		internal.Fecho(c.stdout, "Created password for root '%s'", c.cfg.Root)
		return nil
	}
	internal.Fecho(c.stdout, "Password accepted for root '%s'", c.cfg.Root)
	return nil
}

func describe(e drive.Entry) string {
	kind := "-"
	if e.IsFolder {
		kind = "d"
	}
	name := e.ReadableTitle
	if e.Err != nil {
		name = fmt.Sprintf("<unreadable %s>", e.ID)
	}
	return kind + " " + name
}

func cmdList(ctx context.Context, c *cli, d *drive.Drive, args []string) error {
	var path string
	if len(args) > 0 {
		path = args[0]
	}
	entry, err := d.Resolve(ctx, path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if !entry.IsFolder {
		internal.Fecho(c.stdout, "%s", describe(entry))
		return nil
	}
	entries, err := d.List(ctx, entry.ID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		internal.Fecho(c.stdout, "%s", describe(e))
	}
	return nil
}

func cmdMkdir(ctx context.Context, _ *cli, d *drive.Drive, args []string) error {
	root, err := d.AppRoot()
	if err != nil {
		return err
	}
	_, err = d.CreateFolderPath(ctx, root.ID, drive.SplitPath(args[0])...)
	return err
}

func cmdPut(ctx context.Context, c *cli, d *drive.Drive, args []string) error {
	var (
		content []byte
		err     error
	)
	if len(args) > 1 {
		content, err = os.ReadFile(args[1])
	} else {
		content, err = io.ReadAll(c.stdin)
	}
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	_, err = d.Put(ctx, args[0], content)
	return err
}

func cmdGet(ctx context.Context, c *cli, d *drive.Drive, args []string) error {
	entry, err := resolveItem(ctx, d, args[0])
	if err != nil {
		return err
	}
	content, err := d.ReadFile(ctx, entry.ID)
	if err != nil {
		return err
	}
	if len(args) > 1 {
		return os.WriteFile(args[1], content, 0600)
	}
	_, err = c.stdout.Write(content)
	return err
}

func cmdMove(ctx context.Context, _ *cli, d *drive.Drive, args []string) error {
	entry, err := resolveItem(ctx, d, args[0])
	if err != nil {
		return err
	}
	_, err = d.Rename(ctx, entry.ID, args[1])
	return err
}

func cmdRemove(ctx context.Context, _ *cli, d *drive.Drive, args []string) error {
	ids := make([]drive.ID, len(args))
	for i, path := range args {
		entry, err := resolveItem(ctx, d, path)
		if err != nil {
			return err
		}
		ids[i] = entry.ID
	}
	return d.DeleteMany(ctx, ids...)
}

func cmdReset(ctx context.Context, c *cli, d *drive.Drive, _ []string) error {
	if !c.yes {
		return errors.New("reset deletes everything in the root, pass --yes to confirm")
	}
	if err := d.DeleteAllInRoot(ctx, false); err != nil {
		return err
	}
	if d.Encrypted() {
		if err := d.ClearValidation(ctx); err != nil {
			return err
		}
	}
	internal.Fecho(c.stdout, "Reset root '%s'", c.cfg.Root)
	return nil
}
