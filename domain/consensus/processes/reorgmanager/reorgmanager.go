package reorgmanager

import (
	"sort"

	"github.com/flamenet/flamed/domain/consensus/model"
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
	"github.com/flamenet/flamed/domain/consensus/ruleerrors"
	"github.com/flamenet/flamed/domain/consensus/utils/consensushashing"
	"github.com/flamenet/flamed/domain/dagconfig"
	"github.com/pkg/errors"
)

// reorgManager is the chain coordinator. It owns the canonical chain mapping
// (height to block id), tracks every known tip, and serializes rollback and
// replay so the two can never interleave partially.
//
// Replay validates a block by reproducing it: the block's bags are resolved
// from the arena and re-assembled against the replayed prefix, and the
// resulting id must match. Assembly is deterministic, so a mismatch means
// the block is invalid in the current context.
type reorgManager struct {
	params          *dagconfig.Params
	assembler       model.BlockAssembler
	weightManager   model.WeightManager
	bagStore        model.BagStore
	blockStore      model.BlockStore
	maturationStore model.MaturationStore
	state           externalapi.StateAccumulator
	nowMS           func() int64

	status model.ChainStatus

	// chain maps each committed height to its canonical block id.
	chain     map[uint64]*externalapi.DomainHash
	tipID     *externalapi.DomainHash
	tipHeight uint64

	// tips are the ids of blocks nothing known builds on, the current tip
	// included.
	tips map[externalapi.DomainHash]struct{}

	// banned chain identities, keyed by the rejected tip's block id.
	banned map[externalapi.DomainHash]struct{}
}

// New instantiates a new ReorgManager
func New(params *dagconfig.Params, assembler model.BlockAssembler,
	weightManager model.WeightManager, bagStore model.BagStore,
	blockStore model.BlockStore, maturationStore model.MaturationStore,
	state externalapi.StateAccumulator, nowMS func() int64) model.ReorgManager {

	return &reorgManager{
		params:          params,
		assembler:       assembler,
		weightManager:   weightManager,
		bagStore:        bagStore,
		blockStore:      blockStore,
		maturationStore: maturationStore,
		state:           state,
		nowMS:           nowMS,
		status:          model.StatusFollowing,
		chain:           make(map[uint64]*externalapi.DomainHash),
		tips:            make(map[externalapi.DomainHash]struct{}),
		banned:          make(map[externalapi.DomainHash]struct{}),
	}
}

func (rm *reorgManager) Status() model.ChainStatus {
	return rm.status
}

func (rm *reorgManager) TipID() *externalapi.DomainHash {
	return rm.tipID
}

func (rm *reorgManager) Tip() *externalapi.DomainBlock {
	if rm.tipID == nil {
		return nil
	}
	block, err := rm.blockStore.Block(rm.tipID)
	if err != nil {
		panic(errors.Wrap(err, "canonical tip missing from the block arena"))
	}
	return block
}

func (rm *reorgManager) CommitTipBlock(assembled *model.AssembledBlock) error {
	block := assembled.Block
	if rm.tipID == nil {
		if block.Prev != nil {
			return ruleerrors.NewRuleError(ruleerrors.ErrNotContiguous,
				"first block %s references a prev on an empty chain", assembled.BlockID)
		}
	} else if block.Prev == nil || !block.Prev.Equal(rm.tipID) {
		return ruleerrors.NewRuleError(ruleerrors.ErrNotContiguous,
			"block %s does not build on the canonical tip %s",
			assembled.BlockID, rm.tipID)
	}

	if !rm.blockStore.Has(assembled.BlockID) {
		if err := rm.blockStore.Add(assembled.BlockID, block); err != nil {
			return err
		}
	}
	rm.maturationStore.AddBlockEntries(assembled.BlockID, assembled.MaturationEntries)
	rm.adoptTip(assembled.BlockID, block.Height)

	log.Debugf("Committed block %s at height %d", assembled.BlockID, block.Height)
	return nil
}

func (rm *reorgManager) AddCandidateBlock(blockID *externalapi.DomainHash,
	block *externalapi.DomainBlock) error {

	if !rm.blockStore.Has(blockID) {
		if err := rm.blockStore.Add(blockID, block); err != nil {
			return err
		}
	}
	if block.Prev != nil && !rm.blockStore.Has(block.Prev) {
		return ruleerrors.NewRuleError(ruleerrors.ErrUnknownPrev,
			"candidate block %s references unknown prev %s", blockID, block.Prev)
	}

	rm.tips[*blockID] = struct{}{}
	if block.Prev != nil {
		delete(rm.tips, *block.Prev)
	}
	return nil
}

func (rm *reorgManager) ConsiderChain(tipID *externalapi.DomainHash) error {
	if rm.IsBanned(tipID) {
		return ruleerrors.NewRuleError(ruleerrors.ErrChainBanned,
			"chain %s was previously rejected", tipID)
	}
	if rm.tipID != nil && tipID.Equal(rm.tipID) {
		return nil
	}

	candidateWeight, err := rm.weightManager.ChainWeight(tipID)
	if err != nil {
		return err
	}
	currentWeight := 0.0
	if rm.tipID != nil {
		currentWeight, err = rm.weightManager.ChainWeight(rm.tipID)
		if err != nil {
			return err
		}
	}
	if candidateWeight <= currentWeight {
		return ruleerrors.NewRuleError(ruleerrors.ErrLowerWeight,
			"chain %s weighs %f, not above the canonical %f",
			tipID, candidateWeight, currentWeight)
	}

	candidate, err := rm.chainSegment(tipID)
	if err != nil {
		return err
	}
	ancestorHeight := rm.commonAncestorHeight(candidate)

	log.Infof("Switching to chain %s (weight %f over %f), rolling back to height %d",
		tipID, candidateWeight, currentWeight, ancestorHeight)

	rm.status = model.StatusValidating
	defer func() { rm.status = model.StatusFollowing }()

	banked := rm.detachAbove(ancestorHeight)

	if err := rm.replay(segmentAbove(candidate, ancestorHeight)); err != nil {
		// Bank-and-retry: the partial replay is discarded wholesale and the
		// banked chain, known valid, is restored.
		rm.banned[*tipID] = struct{}{}
		rm.detachAbove(ancestorHeight)
		if restoreErr := rm.replay(banked); restoreErr != nil {
			panic(errors.Wrap(restoreErr, "failed to restore a known-valid chain"))
		}
		log.Warnf("Chain %s failed replay and is banned: %s", tipID, err)
		return ruleerrors.NewRuleError(ruleerrors.ErrInvalidAfterReorg,
			"chain %s failed replay: %s", tipID, err)
	}
	return nil
}

// HandleAnchorReorg drops every memoized weight and re-selects the heaviest
// known chain under the new anchor context, skipping banned ones.
func (rm *reorgManager) HandleAnchorReorg() error {
	rm.weightManager.InvalidateCache()

	type weightedTip struct {
		id     externalapi.DomainHash
		weight float64
	}
	candidates := make([]weightedTip, 0, len(rm.tips))
	for tip := range rm.tips {
		tip := tip
		if _, ok := rm.banned[tip]; ok {
			continue
		}
		if rm.tipID != nil && tip == *rm.tipID {
			continue
		}
		weight, err := rm.weightManager.ChainWeight(&tip)
		if err != nil {
			return err
		}
		candidates = append(candidates, weightedTip{id: tip, weight: weight})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].weight > candidates[j].weight
	})

	for _, candidate := range candidates {
		candidate := candidate
		err := rm.ConsiderChain(&candidate.id)
		if err == nil {
			return nil
		}
		// Equal-weight and lighter chains keep the incumbent tip; a chain
		// failing replay is banned and the next candidate is tried.
		if errors.Is(err, ruleerrors.ErrLowerWeight) ||
			errors.Is(err, ruleerrors.ErrInvalidAfterReorg) {
			continue
		}
		return err
	}
	return nil
}

func (rm *reorgManager) IsBanned(tipID *externalapi.DomainHash) bool {
	_, ok := rm.banned[*tipID]
	return ok
}

// adoptTip registers the block as the canonical tip at the given height.
func (rm *reorgManager) adoptTip(blockID *externalapi.DomainHash, height uint64) {
	if rm.tipID != nil {
		delete(rm.tips, *rm.tipID)
	}
	rm.chain[height] = blockID
	rm.tipID = blockID
	rm.tipHeight = height
	rm.tips[*blockID] = struct{}{}
}

// chainSegment walks the chain ending at tipID back to genesis and returns
// it in ascending height order.
func (rm *reorgManager) chainSegment(tipID *externalapi.DomainHash) ([]*externalapi.DomainBlock, error) {
	var reversed []*externalapi.DomainBlock
	currentID := tipID
	for currentID != nil {
		block, err := rm.blockStore.Block(currentID)
		if err != nil {
			return nil, ruleerrors.NewRuleError(ruleerrors.ErrUnknownPrev,
				"chain references unknown block %s", currentID)
		}
		reversed = append(reversed, block)
		currentID = block.Prev
	}

	segment := make([]*externalapi.DomainBlock, len(reversed))
	for i, block := range reversed {
		segment[len(reversed)-1-i] = block
	}
	return segment, nil
}

// commonAncestorHeight returns the greatest height at which the candidate
// chain and the canonical chain agree, or one below the candidate's first
// block when they never do.
func (rm *reorgManager) commonAncestorHeight(candidate []*externalapi.DomainBlock) uint64 {
	ancestorHeight := uint64(0)
	if len(candidate) > 0 && candidate[0].Height > 0 {
		ancestorHeight = candidate[0].Height - 1
	}
	for _, block := range candidate {
		canonicalID, ok := rm.chain[block.Height]
		if !ok {
			break
		}
		blockID := rm.blockID(block)
		if !canonicalID.Equal(blockID) {
			break
		}
		ancestorHeight = block.Height
	}
	return ancestorHeight
}

func (rm *reorgManager) blockID(block *externalapi.DomainBlock) *externalapi.DomainHash {
	return consensushashing.BlockID(block, rm.params)
}

// detachAbove rolls the canonical chain back to the given height: state is
// restored to the snapshot taken before the first removed block, maturation
// entries of removed blocks are dropped, and the removed segment is returned
// in ascending height order for banking.
func (rm *reorgManager) detachAbove(height uint64) []*externalapi.DomainBlock {
	if rm.tipID == nil || rm.tipHeight <= height {
		return nil
	}

	var banked []*externalapi.DomainBlock
	for h := height + 1; h <= rm.tipHeight; h++ {
		blockID, ok := rm.chain[h]
		if !ok {
			continue
		}
		block, err := rm.blockStore.Block(blockID)
		if err != nil {
			panic(errors.Wrap(err, "canonical block missing from the block arena"))
		}
		banked = append(banked, block)
		rm.maturationStore.RemoveBlockEntries(blockID)
		delete(rm.chain, h)
	}

	if err := rm.state.RestoreSnapshot(height + 1); err != nil {
		panic(errors.Wrap(err, "missing rollback snapshot"))
	}

	// The detached tip stays a known tip: its chain is intact in the block
	// arena and may win again under a different anchor context.
	if canonicalID, ok := rm.chain[height]; ok {
		rm.tipID = canonicalID
		rm.tipHeight = height
		rm.tips[*canonicalID] = struct{}{}
	} else {
		rm.tipID = nil
		rm.tipHeight = 0
	}
	return banked
}

// replay re-assembles and commits the given blocks in ascending height
// order. The first block failing validation aborts the replay with the
// chain partially applied; the caller owns full reversion.
func (rm *reorgManager) replay(blocks []*externalapi.DomainBlock) error {
	for _, block := range blocks {
		bags := make([]*externalapi.DomainBag, len(block.Bags))
		for i, bagID := range block.Bags {
			bag, err := rm.bagStore.Bag(bagID)
			if err != nil {
				return err
			}
			bags[i] = bag
		}

		assembled, err := rm.assembler.AssembleBlock(block.Prev, rm.Tip(), bags, rm.nowMS())
		if err != nil {
			return err
		}
		expectedID := rm.blockID(block)
		if !assembled.BlockID.Equal(expectedID) {
			return ruleerrors.NewRuleError(ruleerrors.ErrInvalidAfterReorg,
				"replayed block %s reassembled as %s", expectedID, assembled.BlockID)
		}

		rm.maturationStore.AddBlockEntries(assembled.BlockID, assembled.MaturationEntries)
		rm.adoptTip(assembled.BlockID, block.Height)
	}
	return nil
}

// segmentAbove filters the ascending segment down to blocks strictly above
// the given height.
func segmentAbove(segment []*externalapi.DomainBlock, height uint64) []*externalapi.DomainBlock {
	for i, block := range segment {
		if block.Height > height {
			return segment[i:]
		}
	}
	return nil
}
