package externalapi

// DomainBid is an anchor-chain commitment to a bag: an output that burns
// `Amount` satoshi and commits to `BagID`. A bid is immutable once its
// anchor transaction confirms.
type DomainBid struct {
	// Amount is the burned value in satoshi.
	Amount uint64

	// BagID is the bag this bid commits to.
	BagID *DomainHash

	// AnchorTxID and AnchorOutputIndex locate the bid output on the anchor
	// chain.
	AnchorTxID        *DomainHash
	AnchorOutputIndex uint32

	// Locktime is the bid transaction's locktime. It must equal the target
	// anchor height for the bag's sidechain height, i.e.
	// bag.Height + InitialHeight.
	Locktime uint64
}

// Clone returns a clone of DomainBid
func (bid *DomainBid) Clone() *DomainBid {
	return &DomainBid{
		Amount:            bid.Amount,
		BagID:             bid.BagID,
		AnchorTxID:        bid.AnchorTxID,
		AnchorOutputIndex: bid.AnchorOutputIndex,
		Locktime:          bid.Locktime,
	}
}
