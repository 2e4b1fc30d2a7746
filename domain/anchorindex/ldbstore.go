package anchorindex

import (
	"encoding/binary"

	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
	"github.com/flamenet/flamed/infrastructure/db/ldb"
	"github.com/pkg/errors"
)

var (
	bidsBucket       = ldb.MakeBucket([]byte("bids"))
	bagsBucket       = ldb.MakeBucket([]byte("bags"))
	blockCountBucket = ldb.MakeBucket([]byte("bid-block-counts"))
)

// ldbStore persists bid records in leveldb. Records are written under two
// keys: bids/<anchor block hash><anchor txid><output index> for reorg
// eviction, and bags/<bag id> for confirmation lookup.
type ldbStore struct {
	db *ldb.LevelDB
}

// NewLDBStore returns a bid record store backed by the given database.
func NewLDBStore(db *ldb.LevelDB) Store {
	return &ldbStore{db: db}
}

func bidKey(record *BidRecord) []byte {
	key := make([]byte, 0, externalapi.DomainHashSize*2+4)
	key = append(key, record.AnchorBlockHash.ByteSlice()...)
	key = append(key, record.AnchorTxID.ByteSlice()...)
	key = binary.LittleEndian.AppendUint32(key, record.OutputIndex)
	return bidsBucket.Key(key)
}

func (ls *ldbStore) StoreRecord(record *BidRecord) error {
	existing, err := ls.RecordByBag(record.BagID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	serialized := record.serialize()
	err = ls.db.Put(bidKey(record), serialized)
	if err != nil {
		return err
	}
	err = ls.db.Put(bagsBucket.Key(record.BagID.ByteSlice()), serialized)
	if err != nil {
		return err
	}
	return ls.bumpBlockCount(record.AnchorBlockHash, 1)
}

func (ls *ldbStore) RecordByBag(bagID *externalapi.DomainHash) (*BidRecord, error) {
	data, err := ls.db.Get(bagsBucket.Key(bagID.ByteSlice()))
	if errors.Is(err, ldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return deserializeBidRecord(data)
}

func (ls *ldbStore) RecordsByAnchorBlock(anchorBlockHash *externalapi.DomainHash) ([]*BidRecord, error) {
	var records []*BidRecord
	prefix := bidsBucket.Key(anchorBlockHash.ByteSlice())
	err := ls.db.ForEachPrefix(prefix, func(_, value []byte) error {
		record, err := deserializeBidRecord(value)
		if err != nil {
			return err
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (ls *ldbStore) RemoveByAnchorBlock(anchorBlockHash *externalapi.DomainHash) error {
	records, err := ls.RecordsByAnchorBlock(anchorBlockHash)
	if err != nil {
		return err
	}
	for _, record := range records {
		err = ls.db.Delete(bagsBucket.Key(record.BagID.ByteSlice()))
		if err != nil {
			return err
		}
	}
	err = ls.db.DeletePrefix(bidsBucket.Key(anchorBlockHash.ByteSlice()))
	if err != nil {
		return err
	}
	return ls.db.Delete(blockCountBucket.Key(anchorBlockHash.ByteSlice()))
}

func (ls *ldbStore) AnchorBlockCount() (uint64, error) {
	var count uint64
	err := ls.db.ForEachPrefix(blockCountBucket.Path(), func(_, _ []byte) error {
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// bumpBlockCount marks an anchor block as carrying records. The value is a
// presence marker; AnchorBlockCount counts keys.
func (ls *ldbStore) bumpBlockCount(anchorBlockHash *externalapi.DomainHash, _ int) error {
	return ls.db.Put(blockCountBucket.Key(anchorBlockHash.ByteSlice()), []byte{1})
}
