package ldb

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldbErrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB defines a thin wrapper around leveldb.
type LevelDB struct {
	ldb *leveldb.DB
}

// ErrNotFound is returned when a required key is absent from the database.
var ErrNotFound = errors.New("ldb: key not found")

// NewLevelDB opens a leveldb instance defined by the given path.
func NewLevelDB(path string) (*LevelDB, error) {
	// Open leveldb. If it doesn't exist, create it.
	ldb, err := leveldb.OpenFile(path, nil)

	// If the database is corrupted, attempt to recover.
	if _, corrupted := err.(*ldbErrors.ErrCorrupted); corrupted {
		log.Warnf("LevelDB corruption detected for path %s: %s", path, err)
		var recoverErr error
		ldb, recoverErr = leveldb.RecoverFile(path, nil)
		if recoverErr != nil {
			return nil, recoverErr
		}
		log.Warnf("LevelDB recovered from corruption for path %s", path)
		err = nil
	}

	// If the database cannot be opened for any other
	// reason, return the error as-is.
	if err != nil {
		return nil, err
	}

	return &LevelDB{ldb: ldb}, nil
}

// Close closes the leveldb instance.
func (db *LevelDB) Close() error {
	return db.ldb.Close()
}

// Put sets the value for the given key. It overwrites
// any previous value for that key.
func (db *LevelDB) Put(key []byte, value []byte) error {
	err := db.ldb.Put(key, value, nil)
	return errors.WithStack(err)
}

// Get gets the value for the given key. It returns ErrNotFound if the
// given key does not exist.
func (db *LevelDB) Get(key []byte) ([]byte, error) {
	data, err := db.ldb.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "key %x not found", key)
		}
		return nil, errors.WithStack(err)
	}
	return data, nil
}

// Has returns true if the database contains the given key.
func (db *LevelDB) Has(key []byte) (bool, error) {
	exists, err := db.ldb.Has(key, nil)
	return exists, errors.WithStack(err)
}

// Delete deletes the value for the given key. Will not return an error if
// the key doesn't exist.
func (db *LevelDB) Delete(key []byte) error {
	err := db.ldb.Delete(key, nil)
	return errors.WithStack(err)
}

// DeletePrefix deletes every key that begins with the given prefix.
func (db *LevelDB) DeletePrefix(prefix []byte) error {
	iterator := db.ldb.NewIterator(util.BytesPrefix(prefix), nil)
	defer iterator.Release()

	batch := new(leveldb.Batch)
	for iterator.Next() {
		key := make([]byte, len(iterator.Key()))
		copy(key, iterator.Key())
		batch.Delete(key)
	}
	if err := iterator.Error(); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(db.ldb.Write(batch, nil))
}

// ForEachPrefix calls fn for every key/value pair whose key begins with the
// given prefix. Iteration stops early if fn returns an error.
func (db *LevelDB) ForEachPrefix(prefix []byte, fn func(key, value []byte) error) error {
	iterator := db.ldb.NewIterator(util.BytesPrefix(prefix), nil)
	defer iterator.Release()

	for iterator.Next() {
		key := make([]byte, len(iterator.Key()))
		copy(key, iterator.Key())
		value := make([]byte, len(iterator.Value()))
		copy(value, iterator.Value())
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return errors.WithStack(iterator.Error())
}
