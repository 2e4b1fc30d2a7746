package externalapi

// AnchorHeader identifies an anchor-chain block.
type AnchorHeader struct {
	Hash   *DomainHash
	Height uint64
}

// Event is the closed union of inputs the consensus coordinator reacts to.
// The coordinator handles every kind exhaustively at a single entry point;
// no other types implement this interface.
type Event interface {
	isEvent()
}

// AnchorBlockEvent reports a new anchor-chain block together with the bid
// commitments found inside it.
type AnchorBlockEvent struct {
	Header *AnchorHeader
	Bids   []*DomainBid
}

// AnchorReorgEvent reports an anchor-chain reorganization: every anchor block
// above CommonAncestorHeight has been replaced by NewBlocks.
type AnchorReorgEvent struct {
	CommonAncestorHeight uint64
	NewBlocks            []*AnchorBlockEvent
}

// BagEvent carries a bag received from sidechain gossip.
type BagEvent struct {
	Bag *DomainBag
}

// BidEvent carries a not-yet-confirmed bid received from sidechain gossip.
type BidEvent struct {
	Bid *DomainBid
}

func (*AnchorBlockEvent) isEvent() {}
func (*AnchorReorgEvent) isEvent() {}
func (*BagEvent) isEvent()         {}
func (*BidEvent) isEvent()         {}
