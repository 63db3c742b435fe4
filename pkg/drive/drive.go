package drive

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/saylorsolutions/drivelock/pkg/metadata"
	"github.com/saylorsolutions/drivelock/pkg/passlock"
)

var validationProperties = []metadata.Property{
	metadata.ValidationText,
	metadata.ValidationTextIV,
	metadata.EncryptionKey,
	metadata.EncryptionKeyIV,
	metadata.Salt,
}

// Entry is an Item along with its readable title.
type Entry struct {
	Item
	// ReadableTitle is the decrypted name, or the raw title if it couldn't be decrypted.
	ReadableTitle string
	// Encrypted is true if the item's name is stored encrypted.
	Encrypted bool
	// Err is the reason the title couldn't be decrypted.
	Err error
}

type Option = func(*Drive)

// WithLogger sets the logger used for store operations.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Drive) {
		d.log = log
	}
}

type Drive struct {
	store  Store
	policy Policy
	log    zerolog.Logger
	guard  *writeGuard

	mu      sync.RWMutex
	root    Item
	hasRoot bool
}

// New creates a Drive over store.
// A nil policy stores names and content as given.
func New(store Store, policy Policy, opts ...Option) *Drive {
	d := &Drive{
		store:  store,
		policy: policy,
		log:    zerolog.Nop(),
		guard:  newWriteGuard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Encrypted reports whether the Drive has a Policy.
func (d *Drive) Encrypted() bool {
	return d.policy != nil
}

// AppRoot returns the app root established by InitRoot.
func (d *Drive) AppRoot() (Item, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.hasRoot {
		return Item{}, ErrNoRoot
	}
	return d.root, nil
}

func (d *Drive) setRoot(root Item) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.root = root
	d.hasRoot = true
}

// InitRoot finds or creates the app root folder named name below the store root, and loads its validation record into the Policy.
func (d *Drive) InitRoot(ctx context.Context, name string) (Item, error) {
	if err := checkName(name); err != nil {
		return Item{}, err
	}
	top, err := d.store.Root(ctx)
	if err != nil {
		return Item{}, fmt.Errorf("failed to get store root: %w", err)
	}
	release, err := d.guard.acquire(ctx, top.ID)
	if err != nil {
		return Item{}, err
	}
	defer release()

	children, err := d.store.List(ctx, top.ID)
	if err != nil {
		return Item{}, fmt.Errorf("failed to list store root: %w", err)
	}
	var (
		root  Item
		found bool
	)
	for _, child := range children {
		if child.IsFolder && child.Title == name {
			root, found = child, true
			break
		}
	}
	if !found {
		root, err = d.store.Create(ctx, top.ID, name, true, nil, nil)
		if err != nil {
			return Item{}, fmt.Errorf("failed to create app root: %w", err)
		}
		d.log.Info().Str("id", string(root.ID)).Msg("Created app root")
	}
	if d.policy != nil {
		if err := d.policy.LoadValidation(root.Metadata); err != nil {
			return Item{}, err
		}
	}
	d.setRoot(root)
	return root, nil
}

// NeedNewPassword reports whether the next SetPassword will create a new validation record.
func (d *Drive) NeedNewPassword() bool {
	if d.policy == nil {
		return false
	}
	return d.policy.NeedNewPassword()
}

// IsUnlocked reports whether names and content can be encrypted and decrypted.
// A Drive without a Policy is always unlocked.
func (d *Drive) IsUnlocked() bool {
	if d.policy == nil {
		return true
	}
	return d.policy.IsUnlocked()
}

// SetPassword unlocks the Drive with pass.
// If the app root has no validation record, one is created from pass and persisted on the app root.
func (d *Drive) SetPassword(ctx context.Context, pass passlock.Passphrase) error {
	if d.policy == nil {
		return ErrNoPolicy
	}
	root, err := d.AppRoot()
	if err != nil {
		return err
	}
	release, err := d.guard.acquire(ctx, root.ID)
	if err != nil {
		return err
	}
	defer release()

	if d.policy.NeedNewPassword() {
		// Another client may have set a password since InitRoot.
		current, err := d.store.Get(ctx, root.ID)
		if err != nil {
			return fmt.Errorf("failed to refresh app root: %w", err)
		}
		if err := d.policy.LoadValidation(current.Metadata); err != nil {
			return err
		}
		root = current
		d.setRoot(root)
	}
	meta, err := d.policy.SetPassword(pass)
	if err != nil {
		return err
	}
	if meta == nil {
		d.log.Debug().Msg("Unlocked with existing validation record")
		return nil
	}
	updated, err := d.store.UpdateMetadata(ctx, root.ID, meta)
	if err != nil {
		d.policy.ClearValidationRecord()
		return fmt.Errorf("failed to persist validation record: %w", err)
	}
	d.setRoot(updated)
	d.log.Info().Str("id", string(root.ID)).Msg("Created validation record")
	return nil
}

// ClearPassword locks the Drive, discarding key material.
func (d *Drive) ClearPassword() {
	if d.policy != nil {
		d.policy.Lock()
	}
}

// ClearValidation removes the validation record from the app root.
// Existing encrypted items are left as they are.
func (d *Drive) ClearValidation(ctx context.Context) error {
	if d.policy == nil {
		return ErrNoPolicy
	}
	root, err := d.AppRoot()
	if err != nil {
		return err
	}
	release, err := d.guard.acquire(ctx, root.ID)
	if err != nil {
		return err
	}
	defer release()

	updates := make(map[string]string, len(validationProperties))
	for _, prop := range validationProperties {
		updates[prop.String()] = ""
	}
	updated, err := d.store.UpdateMetadata(ctx, root.ID, updates)
	if err != nil {
		return fmt.Errorf("failed to clear validation record: %w", err)
	}
	d.policy.ClearValidationRecord()
	d.setRoot(updated)
	d.log.Info().Str("id", string(root.ID)).Msg("Cleared validation record")
	return nil
}

func (d *Drive) entry(item Item) Entry {
	e := Entry{Item: item, ReadableTitle: item.Title}
	_, e.Encrypted = item.Metadata[metadata.AssetNameIV.String()]
	if d.policy == nil {
		return e
	}
	name, err := d.policy.DecryptName(item.Title, item.Metadata)
	if err != nil {
		e.Err = err
		return e
	}
	e.ReadableTitle = name
	return e
}

// Stat returns the current state of an item.
func (d *Drive) Stat(ctx context.Context, id ID) (Entry, error) {
	item, err := d.store.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	return d.entry(item), nil
}

// List returns the children of folder with their readable titles.
// Items with titles that can't be decrypted are included with Err set.
func (d *Drive) List(ctx context.Context, folder ID) ([]Entry, error) {
	items, err := d.store.List(ctx, folder)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(items))
	var failed int
	for i, item := range items {
		entries[i] = d.entry(item)
		if entries[i].Err != nil {
			failed++
		}
	}
	if failed > 0 {
		d.log.Debug().Str("folder", string(folder)).Int("failed", failed).Msg("Some titles could not be decrypted")
	}
	return entries, nil
}

func (d *Drive) findChild(ctx context.Context, folder ID, name string) (Entry, bool, error) {
	entries, err := d.List(ctx, folder)
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.Err == nil && e.ReadableTitle == name {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// Find returns the child of folder with the readable name.
func (d *Drive) Find(ctx context.Context, folder ID, name string) (Entry, error) {
	e, found, err := d.findChild(ctx, folder, name)
	if err != nil {
		return Entry{}, err
	}
	if !found {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// encodeName returns the title and metadata to store for a new name.
// Caller metadata can't set encryption fields.
func (d *Drive) encodeName(name string, meta map[string]string) (string, map[string]string, error) {
	extra := metadata.Extra(meta)
	if d.policy == nil {
		return name, extra, nil
	}
	encMeta, err := d.policy.EncryptName(name)
	if err != nil {
		return "", nil, err
	}
	title := encMeta[metadata.AssetName.String()]
	return title, metadata.Merge(extra, metadata.Strip(encMeta, metadata.AssetName)), nil
}

func (d *Drive) create(ctx context.Context, parent ID, name string, isFolder bool, meta map[string]string) (Entry, error) {
	title, itemMeta, err := d.encodeName(name, meta)
	if err != nil {
		return Entry{}, err
	}
	item, err := d.store.Create(ctx, parent, title, isFolder, itemMeta, nil)
	if err != nil {
		return Entry{}, err
	}
	d.log.Debug().Str("parent", string(parent)).Str("id", string(item.ID)).Bool("folder", isFolder).Msg("Created item")
	return Entry{Item: item, ReadableTitle: name, Encrypted: d.policy != nil}, nil
}

// CreateFolder creates a folder named name in parent.
// If a folder with that name already exists, it's returned instead.
func (d *Drive) CreateFolder(ctx context.Context, parent ID, name string, meta map[string]string) (Entry, error) {
	if err := checkName(name); err != nil {
		return Entry{}, err
	}
	release, err := d.guard.acquire(ctx, parent)
	if err != nil {
		return Entry{}, err
	}
	defer release()

	existing, found, err := d.findChild(ctx, parent, name)
	if err != nil {
		return Entry{}, err
	}
	if found {
		if existing.IsFolder {
			return existing, nil
		}
		return Entry{}, ErrNameConflict
	}
	return d.create(ctx, parent, name, true, meta)
}

// CreateFile creates an empty file named name in parent.
// Returns ErrNameConflict if an item with that name already exists.
func (d *Drive) CreateFile(ctx context.Context, parent ID, name string, meta map[string]string) (Entry, error) {
	if err := checkName(name); err != nil {
		return Entry{}, err
	}
	release, err := d.guard.acquire(ctx, parent)
	if err != nil {
		return Entry{}, err
	}
	defer release()

	if _, found, err := d.findChild(ctx, parent, name); err != nil {
		return Entry{}, err
	} else if found {
		return Entry{}, ErrNameConflict
	}
	return d.create(ctx, parent, name, false, meta)
}

// CreateFolderPath creates each folder in names below the previous one, starting in parent.
// Folders that already exist are descended into. The last folder is returned.
func (d *Drive) CreateFolderPath(ctx context.Context, parent ID, names ...string) (Entry, error) {
	current, err := d.Stat(ctx, parent)
	if err != nil {
		return Entry{}, err
	}
	for _, name := range names {
		current, err = d.CreateFolder(ctx, current.ID, name, nil)
		if err != nil {
			return Entry{}, err
		}
	}
	return current, nil
}

// ReadFile returns the readable content of a file.
func (d *Drive) ReadFile(ctx context.Context, id ID) ([]byte, error) {
	release, err := d.guard.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	item, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.IsFolder {
		return nil, ErrIsFolder
	}
	body, err := d.store.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.policy == nil {
		return body, nil
	}
	return d.policy.DecryptContent(body, item.Metadata)
}

// WriteFile replaces the content of a file, and merges meta into its metadata.
func (d *Drive) WriteFile(ctx context.Context, id ID, content []byte, meta map[string]string) (Entry, error) {
	release, err := d.guard.acquire(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	defer release()

	item, err := d.store.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if item.IsFolder {
		return Entry{}, ErrIsFolder
	}
	body, final := content, metadata.Merge(item.Metadata, metadata.Extra(meta))
	if d.policy != nil {
		body, final, err = d.policy.EncryptContent(content, final)
		if err != nil {
			return Entry{}, err
		}
	}
	updated, err := d.store.Write(ctx, id, body, final)
	if err != nil {
		return Entry{}, err
	}
	d.log.Debug().Str("id", string(id)).Int("size", len(body)).Msg("Wrote file")
	return d.entry(updated), nil
}

// replacement returns the updates that turn old metadata into next under the Store merge rules.
func replacement(old, next map[string]string) map[string]string {
	updates := maps.Clone(next)
	if updates == nil {
		updates = make(map[string]string)
	}
	for k := range old {
		if _, ok := next[k]; !ok {
			updates[k] = ""
		}
	}
	return updates
}

// Rename gives an item a new name.
// With a Policy, the item gets a new item key, and file content is encrypted again under it.
func (d *Drive) Rename(ctx context.Context, id ID, newName string) (Entry, error) {
	if err := checkName(newName); err != nil {
		return Entry{}, err
	}
	item, err := d.store.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	// Parent slot first, then the item's.
	releaseParent, err := d.guard.acquire(ctx, item.Parent)
	if err != nil {
		return Entry{}, err
	}
	defer releaseParent()
	release, err := d.guard.acquire(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	defer release()

	item, err = d.store.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if existing, found, err := d.findChild(ctx, item.Parent, newName); err != nil {
		return Entry{}, err
	} else if found && existing.ID != id {
		return Entry{}, ErrNameConflict
	}
	if d.policy == nil {
		updated, err := d.store.Rename(ctx, id, newName, nil)
		if err != nil {
			return Entry{}, err
		}
		return d.entry(updated), nil
	}

	var body, plain []byte
	if !item.IsFolder {
		body, err = d.store.Read(ctx, id)
		if err != nil {
			return Entry{}, err
		}
		plain, err = d.policy.DecryptContent(body, item.Metadata)
		if err != nil {
			return Entry{}, err
		}
	}
	title, next, err := d.encodeName(newName, item.Metadata)
	if err != nil {
		return Entry{}, err
	}
	if item.IsFolder {
		updated, err := d.store.Rename(ctx, id, title, replacement(item.Metadata, next))
		if err != nil {
			return Entry{}, err
		}
		return d.entry(updated), nil
	}

	var ciphertext []byte
	if len(plain) > 0 {
		ciphertext, next, err = d.policy.EncryptContent(plain, next)
		if err != nil {
			return Entry{}, err
		}
	}
	if _, err := d.store.Write(ctx, id, ciphertext, replacement(item.Metadata, next)); err != nil {
		return Entry{}, err
	}
	updated, err := d.store.Rename(ctx, id, title, nil)
	if err != nil {
		if _, rerr := d.store.Write(ctx, id, body, replacement(next, item.Metadata)); rerr != nil {
			d.log.Error().Err(rerr).Str("id", string(id)).Msg("Failed to restore item after failed rename")
		}
		return Entry{}, err
	}
	d.log.Debug().Str("id", string(id)).Msg("Renamed item")
	return d.entry(updated), nil
}

// Delete removes an item, and everything below it if it's a folder.
func (d *Drive) Delete(ctx context.Context, id ID) error {
	release, err := d.guard.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	if err := d.store.Delete(ctx, id); err != nil {
		return err
	}
	d.log.Debug().Str("id", string(id)).Msg("Deleted item")
	return nil
}

// DeleteMany deletes each item in order, stopping at the first failure.
func (d *Drive) DeleteMany(ctx context.Context, ids ...ID) error {
	for _, id := range ids {
		if err := d.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete item '%s': %w", id, err)
		}
	}
	return nil
}

// DeleteAllInRoot deletes the children of the app root, or only its folders if foldersOnly is true.
func (d *Drive) DeleteAllInRoot(ctx context.Context, foldersOnly bool) error {
	root, err := d.AppRoot()
	if err != nil {
		return err
	}
	items, err := d.store.List(ctx, root.ID)
	if err != nil {
		return err
	}
	var ids []ID
	for _, item := range items {
		if foldersOnly && !item.IsFolder {
			continue
		}
		ids = append(ids, item.ID)
	}
	d.log.Info().Int("count", len(ids)).Bool("foldersOnly", foldersOnly).Msg("Deleting app root contents")
	return d.DeleteMany(ctx, ids...)
}

// SplitPath returns the non-empty names of a slash separated path.
func SplitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool {
		return r == '/'
	})
}

// checkName rejects names that can't be used as a single path element.
func checkName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if strings.ContainsRune(name, '/') {
		return fmt.Errorf("%w: '%s' contains '/'", ErrInvalidName, name)
	}
	return nil
}

// Resolve finds an item by its slash separated readable path below the app root.
// An empty path resolves to the app root.
func (d *Drive) Resolve(ctx context.Context, path string) (Entry, error) {
	root, err := d.AppRoot()
	if err != nil {
		return Entry{}, err
	}
	current := Entry{Item: root, ReadableTitle: root.Title}
	for _, name := range SplitPath(path) {
		if !current.IsFolder {
			return Entry{}, ErrNotFolder
		}
		current, err = d.Find(ctx, current.ID, name)
		if err != nil {
			return Entry{}, err
		}
	}
	return current, nil
}

// Put writes content to the file at path below the app root, creating the file and its parent folders as needed.
func (d *Drive) Put(ctx context.Context, path string, content []byte) (Entry, error) {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return Entry{}, errors.New("path must name a file")
	}
	root, err := d.AppRoot()
	if err != nil {
		return Entry{}, err
	}
	parent, err := d.CreateFolderPath(ctx, root.ID, parts[:len(parts)-1]...)
	if err != nil {
		return Entry{}, err
	}
	name := parts[len(parts)-1]
	file, err := d.CreateFile(ctx, parent.ID, name, nil)
	if errors.Is(err, ErrNameConflict) {
		file, err = d.Find(ctx, parent.ID, name)
	}
	if err != nil {
		return Entry{}, err
	}
	if file.IsFolder {
		return Entry{}, ErrIsFolder
	}
	return d.WriteFile(ctx, file.ID, content, nil)
}
