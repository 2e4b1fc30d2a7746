package anchorindex

import (
	"testing"

	"github.com/flamenet/flamed/infrastructure/db/ldb"
	"github.com/stretchr/testify/require"
)

func testRecord(block, tx, bag byte, amount uint64) *BidRecord {
	return &BidRecord{
		AnchorBlockHash: hashFromByte(block),
		AnchorHeight:    uint64(block),
		AnchorTxID:      hashFromByte(tx),
		OutputIndex:     0,
		BagID:           hashFromByte(bag),
		Amount:          amount,
	}
}

func forEachStore(t *testing.T, test func(t *testing.T, store Store)) {
	t.Run("memory", func(t *testing.T) {
		test(t, NewMemoryStore())
	})
	t.Run("leveldb", func(t *testing.T) {
		db, err := ldb.NewLevelDB(t.TempDir())
		require.NoError(t, err)
		defer db.Close()
		test(t, NewLDBStore(db))
	})
}

func TestStoreRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		record := testRecord(1, 0x10, 7, 42)
		require.NoError(t, store.StoreRecord(record))

		got, err := store.RecordByBag(hashFromByte(7))
		require.NoError(t, err)
		require.Equal(t, record, got)

		byBlock, err := store.RecordsByAnchorBlock(hashFromByte(1))
		require.NoError(t, err)
		require.Len(t, byBlock, 1)
		require.Equal(t, record, byBlock[0])

		count, err := store.AnchorBlockCount()
		require.NoError(t, err)
		require.Equal(t, uint64(1), count)
	})
}

func TestStoreFirstBidWins(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		require.NoError(t, store.StoreRecord(testRecord(1, 0x10, 7, 42)))
		require.NoError(t, store.StoreRecord(testRecord(2, 0x11, 7, 99)))

		got, err := store.RecordByBag(hashFromByte(7))
		require.NoError(t, err)
		require.Equal(t, uint64(42), got.Amount)
	})
}

func TestStoreRemoveByAnchorBlock(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		require.NoError(t, store.StoreRecord(testRecord(1, 0x10, 7, 42)))
		require.NoError(t, store.StoreRecord(testRecord(2, 0x11, 8, 43)))

		require.NoError(t, store.RemoveByAnchorBlock(hashFromByte(1)))

		got, err := store.RecordByBag(hashFromByte(7))
		require.NoError(t, err)
		require.Nil(t, got)

		got, err = store.RecordByBag(hashFromByte(8))
		require.NoError(t, err)
		require.NotNil(t, got)

		count, err := store.AnchorBlockCount()
		require.NoError(t, err)
		require.Equal(t, uint64(1), count)
	})
}

func TestBidRecordSerialization(t *testing.T) {
	record := testRecord(3, 0x20, 9, 1234567890)
	decoded, err := deserializeBidRecord(record.serialize())
	require.NoError(t, err)
	require.Equal(t, record, decoded)

	_, err = deserializeBidRecord([]byte{1, 2, 3})
	require.Error(t, err)
}
