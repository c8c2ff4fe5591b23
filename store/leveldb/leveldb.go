// Package leveldb implements store.Store on top of goleveldb, an embedded
// on-disk key/value engine with native batch support. It is the same
// storage engine historic go-ethereum clients used for Ethereum's state
// trie, narrowed here to the forest's hash-keyed blobs.
package leveldb

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/SundaeSwap-finance/merkle-patricia-forestry/forestryerr"
	"github.com/SundaeSwap-finance/merkle-patricia-forestry/store"
)

// Database is an on-disk store.Store backed by a goleveldb instance.
type Database struct {
	db *leveldb.DB
}

// Open opens (creating if absent) a goleveldb database at path. opts may
// be nil to accept goleveldb's defaults.
func Open(path string, opts *opt.Options) (*Database, error) {
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: opening leveldb at %q: %v", forestryerr.ErrStoreUnavailable, path, err)
	}
	return &Database{db: db}, nil
}

// Close releases the underlying database handle.
func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) Get(_ context.Context, hash common.Hash) ([]byte, bool, error) {
	v, err := d.db.Get(hash.Bytes(), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", forestryerr.ErrStoreUnavailable, err)
	}
	return v, true, nil
}

func (d *Database) Put(_ context.Context, hash common.Hash, data []byte) error {
	if err := d.db.Put(hash.Bytes(), data, nil); err != nil {
		return fmt.Errorf("%w: %v", forestryerr.ErrStoreUnavailable, err)
	}
	return nil
}

func (d *Database) Delete(_ context.Context, hash common.Hash) error {
	if err := d.db.Delete(hash.Bytes(), nil); err != nil {
		return fmt.Errorf("%w: %v", forestryerr.ErrStoreUnavailable, err)
	}
	return nil
}

func (d *Database) Exists(_ context.Context, hash common.Hash) (bool, error) {
	ok, err := d.db.Has(hash.Bytes(), nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", forestryerr.ErrStoreUnavailable, err)
	}
	return ok, nil
}

func (d *Database) Batch(_ context.Context, ops []store.Op) error {
	b := new(leveldb.Batch)
	for _, op := range ops {
		if op.Value == nil {
			b.Delete(op.Key.Bytes())
			continue
		}
		b.Put(op.Key.Bytes(), op.Value)
	}
	if err := d.db.Write(b, nil); err != nil {
		return fmt.Errorf("%w: %v", forestryerr.ErrStoreUnavailable, err)
	}
	return nil
}

var _ store.Store = (*Database)(nil)
