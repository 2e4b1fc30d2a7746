package anchorindex

import (
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
)

// Store persists bid records keyed both by the anchor block that carries
// them and by the bag they commit to. Implementations: in-memory for tests
// and simulation, leveldb-backed for a running node.
type Store interface {
	// StoreRecord inserts a bid record. A second record for the same bag is
	// ignored: the first confirmed bid for a bag wins.
	StoreRecord(record *BidRecord) error

	// RecordByBag returns the confirmed bid record for the given bag, or
	// (nil, nil) when there is none.
	RecordByBag(bagID *externalapi.DomainHash) (*BidRecord, error)

	// RecordsByAnchorBlock returns all bid records carried by the given
	// anchor block.
	RecordsByAnchorBlock(anchorBlockHash *externalapi.DomainHash) ([]*BidRecord, error)

	// RemoveByAnchorBlock removes every record carried by the given anchor
	// block, including the per-bag keys. Used when an anchor reorg discards
	// the block.
	RemoveByAnchorBlock(anchorBlockHash *externalapi.DomainHash) error

	// AnchorBlockCount returns the number of anchor blocks with at least
	// one record.
	AnchorBlockCount() (uint64, error)
}
