// +build rocksdb

package store

import (
	"errors"
	"strings"

	"github.com/tecbot/gorocksdb"
)

// RocksDBStorage implements Storage using RocksDB, adapted directly from
// the teacher's pkg/swarm/rocksdb_storage.go (same option tuning: Snappy
// compression, 64MB write buffer, 256MB block cache, bloom filter).
type RocksDBStorage struct {
	db   *gorocksdb.DB
	opts *gorocksdb.Options
	ro   *gorocksdb.ReadOptions
	wo   *gorocksdb.WriteOptions
}

// NewRocksDBStorage opens (or creates) a RocksDB database at path.
func NewRocksDBStorage(path string) (*RocksDBStorage, error) {
	opts := gorocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)
	opts.SetCompression(gorocksdb.SnappyCompression)
	opts.SetMaxBackgroundCompactions(4)
	opts.SetMaxOpenFiles(1000)
	opts.SetWriteBufferSize(64 * 1024 * 1024)
	opts.SetMaxWriteBufferNumber(3)

	bbto := gorocksdb.NewDefaultBlockBasedTableOptions()
	bbto.SetBlockCache(gorocksdb.NewLRUCache(256 * 1024 * 1024))
	bbto.SetFilterPolicy(gorocksdb.NewBloomFilter(10))
	opts.SetBlockBasedTableFactory(bbto)

	db, err := gorocksdb.OpenDb(opts, path)
	if err != nil {
		opts.Destroy()
		return nil, err
	}

	ro := gorocksdb.NewDefaultReadOptions()
	wo := gorocksdb.NewDefaultWriteOptions()
	wo.SetSync(false)

	return &RocksDBStorage{db: db, opts: opts, ro: ro, wo: wo}, nil
}

func (r *RocksDBStorage) Store(key string, value []byte) error {
	if r.db == nil {
		return errors.New("database is closed")
	}
	return r.db.Put(r.wo, []byte(key), value)
}

func (r *RocksDBStorage) Retrieve(key string) ([]byte, error) {
	if r.db == nil {
		return nil, errors.New("database is closed")
	}
	slice, err := r.db.Get(r.ro, []byte(key))
	if err != nil {
		return nil, err
	}
	defer slice.Free()
	if !slice.Exists() {
		return nil, errors.New("key not found")
	}
	data := make([]byte, slice.Size())
	copy(data, slice.Data())
	return data, nil
}

func (r *RocksDBStorage) Delete(key string) error {
	if r.db == nil {
		return errors.New("database is closed")
	}
	return r.db.Delete(r.wo, []byte(key))
}

func (r *RocksDBStorage) List(prefix string) ([]string, error) {
	if r.db == nil {
		return nil, errors.New("database is closed")
	}
	keys := make([]string, 0)

	it := r.db.NewIterator(r.ro)
	defer it.Close()

	prefixBytes := []byte(prefix)
	it.Seek(prefixBytes)
	for ; it.Valid(); it.Next() {
		keySlice := it.Key()
		key := string(keySlice.Data())
		keySlice.Free()
		if !strings.HasPrefix(key, prefix) {
			break
		}
		keys = append(keys, key)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *RocksDBStorage) Close() error {
	if r.db != nil {
		r.db.Close()
		r.db = nil
	}
	if r.ro != nil {
		r.ro.Destroy()
		r.ro = nil
	}
	if r.wo != nil {
		r.wo.Destroy()
		r.wo = nil
	}
	if r.opts != nil {
		r.opts.Destroy()
		r.opts = nil
	}
	return nil
}
