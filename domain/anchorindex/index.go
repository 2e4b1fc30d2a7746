package anchorindex

import (
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
	"github.com/flamenet/flamed/domain/dagconfig"
	"github.com/pkg/errors"
)

// Index tracks the anchor chain's bid commitments for bags this node knows
// about. It is fed anchor block and reorg events by the consensus
// coordinator and answers, per bag, the anchor height its bid confirmed at.
//
// Index is not safe for concurrent use; the coordinator serializes all
// mutation behind its chain lock.
type Index struct {
	params *dagconfig.Params
	store  Store

	registeredBags    map[externalapi.DomainHash]struct{}
	blockHashByHeight map[uint64]*externalapi.DomainHash
	tip               *externalapi.AnchorHeader
}

// New returns an index positioned at the given anchor tip. A nil tip means
// the index starts before any anchor block has been observed.
func New(params *dagconfig.Params, store Store, tip *externalapi.AnchorHeader) *Index {
	return &Index{
		params:            params,
		store:             store,
		registeredBags:    make(map[externalapi.DomainHash]struct{}),
		blockHashByHeight: make(map[uint64]*externalapi.DomainHash),
		tip:               tip,
	}
}

// RegisterBag announces a bag id the index should track bids for. Bids
// committing to unregistered bags are ignored.
func (ix *Index) RegisterBag(bagID *externalapi.DomainHash) {
	ix.registeredBags[*bagID] = struct{}{}
}

// IsBagRegistered returns whether the given bag is tracked.
func (ix *Index) IsBagRegistered(bagID *externalapi.DomainHash) bool {
	_, ok := ix.registeredBags[*bagID]
	return ok
}

// ProcessAnchorBlock scans a new anchor block's bid commitments, records
// those committing to registered bags, and advances the tip.
func (ix *Index) ProcessAnchorBlock(event *externalapi.AnchorBlockEvent) error {
	header := event.Header
	if ix.tip != nil && header.Height != ix.tip.Height+1 {
		return errors.Errorf("anchor block at height %d does not extend tip at height %d",
			header.Height, ix.tip.Height)
	}

	for _, bid := range event.Bids {
		if !ix.IsBagRegistered(bid.BagID) {
			log.Debugf("Ignoring bid for unregistered bag %s in anchor block %s",
				bid.BagID, header.Hash)
			continue
		}
		err := ix.store.StoreRecord(&BidRecord{
			AnchorBlockHash: header.Hash,
			AnchorHeight:    header.Height,
			AnchorTxID:      bid.AnchorTxID,
			OutputIndex:     bid.AnchorOutputIndex,
			BagID:           bid.BagID,
			Amount:          bid.Amount,
		})
		if err != nil {
			return err
		}
	}

	ix.blockHashByHeight[header.Height] = header.Hash
	ix.tip = header
	return nil
}

// ProcessReorg evicts the bid records of every discarded anchor block above
// the common ancestor, then scans the replacement blocks in order.
func (ix *Index) ProcessReorg(event *externalapi.AnchorReorgEvent) error {
	if ix.tip == nil {
		return errors.New("anchor reorg received before any anchor block")
	}

	for height := event.CommonAncestorHeight + 1; height <= ix.tip.Height; height++ {
		discarded, ok := ix.blockHashByHeight[height]
		if !ok {
			continue
		}
		err := ix.store.RemoveByAnchorBlock(discarded)
		if err != nil {
			return err
		}
		delete(ix.blockHashByHeight, height)
		log.Debugf("Evicted bid records of discarded anchor block %s (height %d)",
			discarded, height)
	}

	ix.tip = &externalapi.AnchorHeader{
		Hash:   ix.blockHashByHeight[event.CommonAncestorHeight],
		Height: event.CommonAncestorHeight,
	}

	for _, newBlock := range event.NewBlocks {
		err := ix.ProcessAnchorBlock(newBlock)
		if err != nil {
			return err
		}
	}
	return nil
}

// ConfirmationHeight returns the anchor height at which the bag's bid
// confirmed. ok is false for unconfirmed bids, bids evicted by an anchor
// reorg, and bids that have not yet reached the configured confirmation
// depth.
func (ix *Index) ConfirmationHeight(bagID *externalapi.DomainHash) (uint64, bool) {
	record, err := ix.store.RecordByBag(bagID)
	if err != nil {
		log.Errorf("Failed to look up bid record for bag %s: %s", bagID, err)
		return 0, false
	}
	if record == nil || ix.tip == nil {
		return 0, false
	}

	confirmations := ix.tip.Height - record.AnchorHeight + 1
	if confirmations < ix.params.AnchorConfirmationDepth {
		return 0, false
	}
	return record.AnchorHeight, true
}

// BidAmount returns the burned amount of the bag's confirmed bid.
func (ix *Index) BidAmount(bagID *externalapi.DomainHash) (uint64, bool) {
	record, err := ix.store.RecordByBag(bagID)
	if err != nil || record == nil {
		return 0, false
	}
	return record.Amount, true
}

// TipHeader returns the current anchor chain tip, or nil before the first
// anchor block.
func (ix *Index) TipHeader() *externalapi.AnchorHeader {
	return ix.tip
}
