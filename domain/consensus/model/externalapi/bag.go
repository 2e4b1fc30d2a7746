package externalapi

// DomainBag is a minter's candidate block content. A bag is created off an
// existing tip, committed to on the anchor chain by a bid, and is immutable
// once published. Its identifier is a pure function of its content.
type DomainBag struct {
	// Height is the sidechain height this bag targets. It is strictly
	// greater than the height of every direct or indirect ancestor.
	Height uint64

	// Ancestors are the bag ids this bag directly builds on.
	Ancestors []*DomainHash

	// TimestampMS is the minter's wall clock at bag creation, in
	// milliseconds.
	TimestampMS int64

	// RewardAddress is the opaque sidechain address rewards for this bag
	// are paid to.
	RewardAddress []byte

	// BidTxID and BidOutputIndex locate the anchor-chain output that
	// committed to this bag.
	BidTxID        *DomainHash
	BidOutputIndex uint32

	// BidAmount is the value burned by this bag's bid, in satoshi.
	BidAmount uint64

	// Transactions is the ordered transaction sequence this bag proposes.
	Transactions []*DomainTransaction

	// Ext is an opaque extension blob. All bags merged into one block must
	// carry an identical Ext.
	Ext []byte
}

// bagOverheadSize is the accounted serialized size of a bag's non-transaction
// fields.
const bagOverheadSize = 120

// Size returns the bag's accounted size in bytes for size-limit checks.
func (bag *DomainBag) Size() uint64 {
	size := uint64(bagOverheadSize)
	size += uint64(len(bag.Ancestors)) * DomainHashSize
	size += uint64(len(bag.RewardAddress))
	size += uint64(len(bag.Ext))
	for _, tx := range bag.Transactions {
		size += tx.Mass
	}
	return size
}

// Clone returns a clone of DomainBag
func (bag *DomainBag) Clone() *DomainBag {
	rewardAddressClone := make([]byte, len(bag.RewardAddress))
	copy(rewardAddressClone, bag.RewardAddress)
	extClone := make([]byte, len(bag.Ext))
	copy(extClone, bag.Ext)

	transactionsClone := make([]*DomainTransaction, len(bag.Transactions))
	for i, tx := range bag.Transactions {
		transactionsClone[i] = tx.Clone()
	}

	return &DomainBag{
		Height:         bag.Height,
		Ancestors:      CloneHashes(bag.Ancestors),
		TimestampMS:    bag.TimestampMS,
		RewardAddress:  rewardAddressClone,
		BidTxID:        bag.BidTxID,
		BidOutputIndex: bag.BidOutputIndex,
		BidAmount:      bag.BidAmount,
		Transactions:   transactionsClone,
		Ext:            extClone,
	}
}
