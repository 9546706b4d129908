// +build !rocksdb

package store

import "errors"

// RocksDBStorage is a stub used when the binary is built without the
// rocksdb tag, matching the teacher's own rocksdb_stub.go fallback.
type RocksDBStorage struct{}

// NewRocksDBStorage always fails without the rocksdb build tag.
func NewRocksDBStorage(path string) (*RocksDBStorage, error) {
	return nil, errors.New("RocksDB support not compiled in. Rebuild with '-tags rocksdb' to enable RocksDB storage")
}

func (r *RocksDBStorage) Store(key string, value []byte) error {
	return errors.New("RocksDB not available")
}

func (r *RocksDBStorage) Retrieve(key string) ([]byte, error) {
	return nil, errors.New("RocksDB not available")
}

func (r *RocksDBStorage) Delete(key string) error {
	return errors.New("RocksDB not available")
}

func (r *RocksDBStorage) List(prefix string) ([]string, error) {
	return nil, errors.New("RocksDB not available")
}

func (r *RocksDBStorage) Close() error {
	return nil
}
