package consensus

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcutil"
	"github.com/flamenet/flamed/domain/anchorindex"
	"github.com/flamenet/flamed/domain/consensus/model"
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
	"github.com/flamenet/flamed/domain/consensus/ruleerrors"
	"github.com/flamenet/flamed/domain/consensus/utils/consensushashing"
	"github.com/flamenet/flamed/domain/dagconfig"
	"github.com/pkg/errors"
)

// feeWindowSize is the number of committed blocks the fee estimator and the
// price feed look back over.
const feeWindowSize = 144

// Consensus is the single-writer engine facade. Every mutating operation
// runs under one chain-level lock, so anchor events, gossip, and block
// building serialize into one consistent state-transition sequence.
// Read-only queries are served from an immutable snapshot of the committed
// state and never take the write lock.
type Consensus struct {
	lock   sync.Mutex
	params *dagconfig.Params

	bagStore        model.BagStore
	blockStore      model.BlockStore
	maturationStore model.MaturationStore
	anchorIndex     *anchorindex.Index
	bagValidator    model.BagValidator
	rewardManager   model.RewardManager
	weightManager   model.WeightManager
	blockAssembler  model.BlockAssembler
	reorgManager    model.ReorgManager
	state           externalapi.StateAccumulator
	nowMS           func() int64

	// pendingBags hold submitted bags not yet merged into a committed block.
	pendingBags map[externalapi.DomainHash]*externalapi.DomainBag

	snapshot atomic.Pointer[committedSnapshot]
}

// committedSnapshot is an immutable view over the committed chain, replaced
// wholesale after every state transition.
type committedSnapshot struct {
	tipID *externalapi.DomainHash
	tip   *externalapi.DomainBlock

	// feeRate is the median fee rate over the fee window, in satoshi per
	// kilobyte of transaction mass.
	feeRate btcutil.Amount

	// burnSeries is the per-block total burn over the fee window, in
	// ascending height order.
	burnSeries []btcutil.Amount
}

// SubmitBag validates and admits a gossiped bag, registers it with the
// anchor bid index, and returns its id.
func (c *Consensus) SubmitBag(bag *externalapi.DomainBag) (*externalapi.DomainHash, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.submitBag(bag)
}

func (c *Consensus) submitBag(bag *externalapi.DomainBag) (*externalapi.DomainHash, error) {
	if err := c.bagValidator.ValidateBag(bag); err != nil {
		return nil, err
	}
	bagID := consensushashing.BagID(bag, c.params)
	if err := c.bagStore.Add(bagID, bag); err != nil {
		return nil, err
	}
	c.anchorIndex.RegisterBag(bagID)
	c.pendingBags[*bagID] = bag.Clone()

	log.Debugf("Admitted bag %s at height %d (bid %d)", bagID, bag.Height, bag.BidAmount)
	return bagID, nil
}

// SubmitBid validates a gossiped, not-yet-confirmed bid against its bag. The
// bid only gains consensus meaning once its anchor transaction confirms and
// the bid index picks it up from an anchor block.
func (c *Consensus) SubmitBid(bid *externalapi.DomainBid) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.submitBid(bid)
}

func (c *Consensus) submitBid(bid *externalapi.DomainBid) error {
	bag, err := c.bagStore.Bag(bid.BagID)
	if err != nil {
		return err
	}
	target := c.params.TargetAnchorHeight(bag.Height)
	if bid.Locktime != target {
		return ruleerrors.NewRuleError(ruleerrors.ErrBidLocktimeMismatch,
			"bid for bag %s has locktime %d, expected the target anchor height %d",
			bid.BagID, bid.Locktime, target)
	}
	log.Debugf("Accepted bid of %d for bag %s", bid.Amount, bid.BagID)
	return nil
}

// HandleEvent is the coordinator's single entry point: the closed union of
// event kinds is handled exhaustively, and anything else is a programming
// error.
func (c *Consensus) HandleEvent(event externalapi.Event) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	switch event := event.(type) {
	case *externalapi.AnchorBlockEvent:
		return c.handleAnchorBlock(event)
	case *externalapi.AnchorReorgEvent:
		return c.handleAnchorReorg(event)
	case *externalapi.BagEvent:
		_, err := c.submitBag(event.Bag)
		return err
	case *externalapi.BidEvent:
		return c.submitBid(event.Bid)
	default:
		panic(errors.Errorf("encountered an unknown event type %T", event))
	}
}

func (c *Consensus) handleAnchorBlock(event *externalapi.AnchorBlockEvent) error {
	if err := c.anchorIndex.ProcessAnchorBlock(event); err != nil {
		return err
	}
	// Confirmation depths shifted, so every memoized weight is stale.
	if err := c.reorgManager.HandleAnchorReorg(); err != nil {
		return err
	}
	c.refreshSnapshot()
	return nil
}

func (c *Consensus) handleAnchorReorg(event *externalapi.AnchorReorgEvent) error {
	if err := c.anchorIndex.ProcessReorg(event); err != nil {
		return err
	}
	log.Infof("Anchor chain reorganized above height %d (%d replacement blocks)",
		event.CommonAncestorHeight, len(event.NewBlocks))
	if err := c.reorgManager.HandleAnchorReorg(); err != nil {
		return err
	}
	c.refreshSnapshot()
	return nil
}

// SubmitBlock admits an externally produced block as a competing chain
// candidate and switches to it if it outweighs the canonical tip.
func (c *Consensus) SubmitBlock(block *externalapi.DomainBlock) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	blockID := consensushashing.BlockID(block, c.params)
	if err := c.reorgManager.AddCandidateBlock(blockID, block); err != nil {
		return err
	}
	err := c.reorgManager.ConsiderChain(blockID)
	if err != nil {
		return err
	}
	c.refreshSnapshot()
	return nil
}

// BuildBlock merges the heaviest compatible set of pending bags for the next
// height into a block, commits it, and returns it.
func (c *Consensus) BuildBlock() (*model.AssembledBlock, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	height := uint64(1)
	if tip := c.reorgManager.Tip(); tip != nil {
		height = tip.Height + 1
	}

	selected := c.selectBags(height)
	if len(selected) == 0 {
		return nil, ruleerrors.NewRuleError(ruleerrors.ErrNoBags,
			"no pending bags target height %d", height)
	}

	assembled, err := c.blockAssembler.AssembleBlock(
		c.reorgManager.TipID(), c.reorgManager.Tip(), selected, c.nowMS())
	if err != nil {
		return nil, err
	}
	if err := c.reorgManager.CommitTipBlock(assembled); err != nil {
		return nil, err
	}
	for _, bagID := range assembled.Block.Bags {
		delete(c.pendingBags, *bagID)
	}
	c.refreshSnapshot()

	log.Infof("Built block %s at height %d out of %d bags",
		assembled.BlockID, height, len(assembled.Block.Bags))
	return assembled, nil
}

// selectBags picks a maximal-weight mutually compatible set of pending bags
// for the given height under the block size limit: candidates are taken
// greedily in descending adjusted-burn order.
func (c *Consensus) selectBags(height uint64) []*externalapi.DomainBag {
	type candidate struct {
		id       *externalapi.DomainHash
		bag      *externalapi.DomainBag
		adjusted uint64
	}

	candidates := make([]*candidate, 0, len(c.pendingBags))
	for id, bag := range c.pendingBags {
		if bag.Height != height {
			continue
		}
		id := id
		adjusted := uint64(0)
		if confirmedAt, ok := c.anchorIndex.ConfirmationHeight(&id); ok {
			delay := uint64(0)
			if target := c.params.TargetAnchorHeight(height); confirmedAt > target {
				delay = confirmedAt - target
			}
			adjusted = c.weightManager.AdjustedBurn(bag.BidAmount, delay)
		}
		candidates = append(candidates, &candidate{id: &id, bag: bag, adjusted: adjusted})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].adjusted != candidates[j].adjusted {
			return candidates[i].adjusted > candidates[j].adjusted
		}
		return candidates[i].bag.BidTxID.Less(candidates[j].bag.BidTxID)
	})

	var selected []*candidate
	var selectedBags []*externalapi.DomainBag
	blockSize := uint64(0)
	sizeLimit := c.params.MaxBlockSize
	for _, cand := range candidates {
		if blockSize+cand.bag.Size() > sizeLimit {
			continue
		}
		compatible := true
		for _, chosen := range selected {
			err := c.bagValidator.CheckCompatible(chosen.id, cand.id, chosen.bag, cand.bag)
			if err != nil {
				compatible = false
				break
			}
		}
		if !compatible {
			continue
		}
		selected = append(selected, cand)
		selectedBags = append(selectedBags, cand.bag)
		blockSize += cand.bag.Size()
	}
	return selectedBags
}

// CurrentTip returns the canonical tip block, or nil before the first block.
// It reads the committed snapshot and never blocks on the write lock.
func (c *Consensus) CurrentTip() *externalapi.DomainBlock {
	return c.snapshot.Load().tip
}

// CurrentTipID returns the canonical tip's block id, or nil before the first
// block.
func (c *Consensus) CurrentTipID() *externalapi.DomainHash {
	return c.snapshot.Load().tipID
}

// EstimateFee returns the median fee rate over the last 144 committed
// blocks, in satoshi per kilobyte of transaction mass. Zero means there is
// not enough fee history yet.
func (c *Consensus) EstimateFee() btcutil.Amount {
	return c.snapshot.Load().feeRate
}

// PriceFeed returns the total burned value per block over the last 144
// committed blocks, ascending by height. The latest block is last.
func (c *Consensus) PriceFeed() []btcutil.Amount {
	return c.snapshot.Load().burnSeries
}

// SpendableRewards returns all matured reward entries at the given height.
func (c *Consensus) SpendableRewards(height uint64) []*externalapi.MaturationEntry {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.maturationStore.SpendableAt(height)
}

// refreshSnapshot rebuilds the immutable committed view. Called under the
// write lock after every state transition.
func (c *Consensus) refreshSnapshot() {
	snapshot := &committedSnapshot{
		tipID: c.reorgManager.TipID(),
		tip:   c.reorgManager.Tip(),
	}

	var feeRates []btcutil.Amount
	currentID := snapshot.tipID
	for i := 0; i < feeWindowSize && currentID != nil; i++ {
		block, err := c.blockStore.Block(currentID)
		if err != nil {
			panic(errors.Wrap(err, "committed chain references a missing block"))
		}

		burn := uint64(0)
		fees := uint64(0)
		mass := uint64(0)
		seen := make(map[externalapi.DomainHash]struct{})
		for _, bagID := range block.Bags {
			bag, err := c.bagStore.Bag(bagID)
			if err != nil {
				panic(errors.Wrap(err, "committed block references a missing bag"))
			}
			burn += bag.BidAmount
			for _, tx := range bag.Transactions {
				if _, ok := seen[*tx.ID]; ok {
					continue
				}
				seen[*tx.ID] = struct{}{}
				fees += tx.Fee
				mass += tx.Mass
			}
		}

		snapshot.burnSeries = append(snapshot.burnSeries, btcutil.Amount(burn))
		if mass > 0 {
			feeRates = append(feeRates, btcutil.Amount(fees*1_000/mass))
		}
		currentID = block.Prev
	}

	// The walk above is tip-first; the series is served ascending.
	for i, j := 0, len(snapshot.burnSeries)-1; i < j; i, j = i+1, j-1 {
		snapshot.burnSeries[i], snapshot.burnSeries[j] = snapshot.burnSeries[j], snapshot.burnSeries[i]
	}

	if len(feeRates) > 0 {
		sort.Slice(feeRates, func(i, j int) bool { return feeRates[i] < feeRates[j] })
		snapshot.feeRate = feeRates[(len(feeRates)-1)/2]
	}

	c.snapshot.Store(snapshot)
}
