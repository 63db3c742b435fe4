/*
Package boltstore provides a drive.Store persisted in a single bbolt file.

Items are stored as CBOR records in the items bucket, keyed by ID.
Each folder has a nested bucket in children mapping a creation sequence to child IDs, so listings keep creation order.
File bodies are stored in bodies, and the settings bucket holds the root ID and key generator settings.
*/
package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/saylorsolutions/drivelock/pkg/drive"
	"github.com/saylorsolutions/drivelock/pkg/passlock"
	"go.etcd.io/bbolt"
)

var _ drive.Store = (*Store)(nil)

var (
	itemsBucket    = []byte("items")
	childrenBucket = []byte("children")
	bodiesBucket   = []byte("bodies")
	settingsBucket = []byte("settings")

	rootKey = []byte("root")
	kdfKey  = []byte("kdf")
)

var (
	ErrNoSettings = errors.New("no key generator settings stored")
	ErrCorrupted  = errors.New("store file is corrupted")
)

const (
	DefaultTimeout = 5 * time.Second
	fileMode       = 0600
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("boltstore: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("boltstore: CBOR decoder initialization failed: " + err.Error())
	}
}

// record is the persisted form of an item.
type record struct {
	Parent   string            `cbor:"1,keyasint,omitempty"`
	Title    string            `cbor:"2,keyasint"`
	IsFolder bool              `cbor:"3,keyasint"`
	Metadata map[string]string `cbor:"4,keyasint,omitempty"`
	Seq      uint64            `cbor:"5,keyasint"`
}

func (r record) item(id drive.ID) drive.Item {
	meta := r.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	return drive.Item{
		ID:       id,
		Parent:   drive.ID(r.Parent),
		Title:    r.Title,
		IsFolder: r.IsFolder,
		Metadata: meta,
	}
}

type Option = func(*Store)

// WithLogger sets the logger used for store lifecycle events.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// WithTimeout sets how long Open waits for the file lock held by another process.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		s.timeout = timeout
	}
}

// Store is a drive.Store backed by a bbolt database file.
type Store struct {
	db      *bbolt.DB
	log     zerolog.Logger
	timeout time.Duration
	root    drive.ID
}

// Open opens or creates the store file at path.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		log:     zerolog.Nop(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	db, err := bbolt.Open(path, fileMode, &bbolt.Options{Timeout: s.timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	s.db = db
	if err := db.Update(s.init); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.log.Debug().Str("path", path).Str("root", string(s.root)).Msg("Opened store")
	return s, nil
}

func (s *Store) init(tx *bbolt.Tx) error {
	for _, name := range [][]byte{itemsBucket, childrenBucket, bodiesBucket, settingsBucket} {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return fmt.Errorf("failed to create bucket '%s': %w", name, err)
		}
	}
	settings := tx.Bucket(settingsBucket)
	if id := settings.Get(rootKey); id != nil {
		s.root = drive.ID(id)
		if tx.Bucket(itemsBucket).Get(id) == nil {
			return fmt.Errorf("%w: missing root item", ErrCorrupted)
		}
		return nil
	}
	s.root = drive.ID(uuid.NewString())
	if err := putRecord(tx, s.root, record{IsFolder: true}); err != nil {
		return err
	}
	if _, err := tx.Bucket(childrenBucket).CreateBucket([]byte(s.root)); err != nil {
		return err
	}
	return settings.Put(rootKey, []byte(s.root))
}

// Close releases the store file.
func (s *Store) Close() error {
	return s.db.Close()
}

func getRecord(tx *bbolt.Tx, id drive.ID) (record, error) {
	data := tx.Bucket(itemsBucket).Get([]byte(id))
	if data == nil {
		return record{}, fmt.Errorf("%w: %s", drive.ErrNotFound, id)
	}
	var rec record
	if err := decMode.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("%w: item '%s': %v", ErrCorrupted, id, err)
	}
	return rec, nil
}

func putRecord(tx *bbolt.Tx, id drive.ID, rec record) error {
	data, err := encMode.Marshal(rec)
	if err != nil {
		return err
	}
	return tx.Bucket(itemsBucket).Put([]byte(id), data)
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func (s *Store) view(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func (s *Store) update(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(fn)
}

func (s *Store) Root(ctx context.Context) (drive.Item, error) {
	return s.Get(ctx, s.root)
}

func (s *Store) Get(ctx context.Context, id drive.ID) (drive.Item, error) {
	var item drive.Item
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		rec, err := getRecord(tx, id)
		if err != nil {
			return err
		}
		item = rec.item(id)
		return nil
	})
	return item, err
}

func (s *Store) List(ctx context.Context, folder drive.ID) ([]drive.Item, error) {
	var items []drive.Item
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		rec, err := getRecord(tx, folder)
		if err != nil {
			return err
		}
		if !rec.IsFolder {
			return drive.ErrNotFolder
		}
		children := tx.Bucket(childrenBucket).Bucket([]byte(folder))
		if children == nil {
			return fmt.Errorf("%w: missing children of '%s'", ErrCorrupted, folder)
		}
		return children.ForEach(func(_, v []byte) error {
			id := drive.ID(v)
			child, err := getRecord(tx, id)
			if err != nil {
				return err
			}
			items = append(items, child.item(id))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) Create(ctx context.Context, folder drive.ID, title string, isFolder bool, meta map[string]string, body []byte) (drive.Item, error) {
	var item drive.Item
	err := s.update(ctx, func(tx *bbolt.Tx) error {
		parent, err := getRecord(tx, folder)
		if err != nil {
			return err
		}
		if !parent.IsFolder {
			return drive.ErrNotFolder
		}
		siblings := tx.Bucket(childrenBucket).Bucket([]byte(folder))
		if siblings == nil {
			return fmt.Errorf("%w: missing children of '%s'", ErrCorrupted, folder)
		}
		seq, err := siblings.NextSequence()
		if err != nil {
			return err
		}
		id := drive.ID(uuid.NewString())
		rec := record{
			Parent:   string(folder),
			Title:    title,
			IsFolder: isFolder,
			Metadata: drive.MergeMetadata(nil, meta),
			Seq:      seq,
		}
		if err := putRecord(tx, id, rec); err != nil {
			return err
		}
		if err := siblings.Put(seqKey(seq), []byte(id)); err != nil {
			return err
		}
		if isFolder {
			if _, err := tx.Bucket(childrenBucket).CreateBucket([]byte(id)); err != nil {
				return err
			}
		} else if err := tx.Bucket(bodiesBucket).Put([]byte(id), bytes.Clone(body)); err != nil {
			return err
		}
		item = rec.item(id)
		return nil
	})
	return item, err
}

func (s *Store) Read(ctx context.Context, id drive.ID) ([]byte, error) {
	var body []byte
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		rec, err := getRecord(tx, id)
		if err != nil {
			return err
		}
		if rec.IsFolder {
			return drive.ErrIsFolder
		}
		// Values are only valid for the life of the transaction.
		body = bytes.Clone(tx.Bucket(bodiesBucket).Get([]byte(id)))
		return nil
	})
	return body, err
}

// modify applies fn to the record of id and persists it.
func (s *Store) modify(ctx context.Context, id drive.ID, fn func(tx *bbolt.Tx, rec *record) error) (drive.Item, error) {
	var item drive.Item
	err := s.update(ctx, func(tx *bbolt.Tx) error {
		rec, err := getRecord(tx, id)
		if err != nil {
			return err
		}
		if err := fn(tx, &rec); err != nil {
			return err
		}
		if err := putRecord(tx, id, rec); err != nil {
			return err
		}
		item = rec.item(id)
		return nil
	})
	return item, err
}

func (s *Store) Write(ctx context.Context, id drive.ID, body []byte, meta map[string]string) (drive.Item, error) {
	return s.modify(ctx, id, func(tx *bbolt.Tx, rec *record) error {
		if rec.IsFolder {
			return drive.ErrIsFolder
		}
		rec.Metadata = drive.MergeMetadata(rec.Metadata, meta)
		return tx.Bucket(bodiesBucket).Put([]byte(id), bytes.Clone(body))
	})
}

func (s *Store) Rename(ctx context.Context, id drive.ID, title string, meta map[string]string) (drive.Item, error) {
	if id == s.root {
		return drive.Item{}, drive.ErrRootItem
	}
	return s.modify(ctx, id, func(_ *bbolt.Tx, rec *record) error {
		rec.Title = title
		rec.Metadata = drive.MergeMetadata(rec.Metadata, meta)
		return nil
	})
}

func (s *Store) UpdateMetadata(ctx context.Context, id drive.ID, meta map[string]string) (drive.Item, error) {
	return s.modify(ctx, id, func(_ *bbolt.Tx, rec *record) error {
		rec.Metadata = drive.MergeMetadata(rec.Metadata, meta)
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, id drive.ID) error {
	if id == s.root {
		return drive.ErrRootItem
	}
	return s.update(ctx, func(tx *bbolt.Tx) error {
		rec, err := getRecord(tx, id)
		if err != nil {
			return err
		}
		if siblings := tx.Bucket(childrenBucket).Bucket([]byte(rec.Parent)); siblings != nil {
			if err := siblings.Delete(seqKey(rec.Seq)); err != nil {
				return err
			}
		}
		return deleteTree(tx, id, rec)
	})
}

func deleteTree(tx *bbolt.Tx, id drive.ID, rec record) error {
	if rec.IsFolder {
		children := tx.Bucket(childrenBucket)
		var ids []drive.ID
		if sub := children.Bucket([]byte(id)); sub != nil {
			if err := sub.ForEach(func(_, v []byte) error {
				ids = append(ids, drive.ID(v))
				return nil
			}); err != nil {
				return err
			}
		}
		for _, child := range ids {
			childRec, err := getRecord(tx, child)
			if err != nil {
				return err
			}
			if err := deleteTree(tx, child, childRec); err != nil {
				return err
			}
		}
		if err := children.DeleteBucket([]byte(id)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
	} else if err := tx.Bucket(bodiesBucket).Delete([]byte(id)); err != nil {
		return err
	}
	return tx.Bucket(itemsBucket).Delete([]byte(id))
}

// SaveSettings persists the key generator settings, so the same derivation parameters are used when the store is opened again.
func (s *Store) SaveSettings(gen *passlock.KeyGenerator) error {
	data, err := gen.MarshalBinary()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(settingsBucket).Put(kdfKey, data)
	})
}

// LoadSettings restores key generator settings written by SaveSettings.
// Returns ErrNoSettings if none have been saved.
func (s *Store) LoadSettings() (*passlock.KeyGenerator, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data = bytes.Clone(tx.Bucket(settingsBucket).Get(kdfKey))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrNoSettings
	}
	gen := new(passlock.KeyGenerator)
	if err := gen.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return gen, nil
}
