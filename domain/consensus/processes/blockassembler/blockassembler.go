package blockassembler

import (
	"bytes"
	"sort"

	"github.com/flamenet/flamed/domain/consensus/model"
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
	"github.com/flamenet/flamed/domain/consensus/ruleerrors"
	"github.com/flamenet/flamed/domain/consensus/utils/consensushashing"
	"github.com/flamenet/flamed/domain/dagconfig"
)

// blockOverheadSize is the accounted serialized size of a block's
// non-transaction fields, excluding the bag id list.
const blockOverheadSize = 120

// blockAssembler merges compatible bags into a block through a strictly
// ordered pipeline. Any failure aborts the whole block; the state
// accumulator is restored to its pre-assembly snapshot, so a failed
// assembly is invisible.
type blockAssembler struct {
	params        *dagconfig.Params
	bagValidator  model.BagValidator
	rewardManager model.RewardManager
	weightManager model.WeightManager
	bagStore      model.BagStore
	state         externalapi.StateAccumulator
	sizeFunc      model.SizeFunc
}

// New instantiates a new BlockAssembler. sizeFunc may be nil, in which case
// the network's fallback block size limit applies at every height.
func New(params *dagconfig.Params, bagValidator model.BagValidator,
	rewardManager model.RewardManager, weightManager model.WeightManager,
	bagStore model.BagStore, state externalapi.StateAccumulator,
	sizeFunc model.SizeFunc) model.BlockAssembler {

	if sizeFunc == nil {
		sizeFunc = func(uint64) uint64 { return params.MaxBlockSize }
	}
	return &blockAssembler{
		params:        params,
		bagValidator:  bagValidator,
		rewardManager: rewardManager,
		weightManager: weightManager,
		bagStore:      bagStore,
		state:         state,
		sizeFunc:      sizeFunc,
	}
}

func (ba *blockAssembler) AssembleBlock(prevID *externalapi.DomainHash,
	prev *externalapi.DomainBlock, bags []*externalapi.DomainBag,
	nowMS int64) (*model.AssembledBlock, error) {

	if len(bags) == 0 {
		return nil, ruleerrors.NewRuleError(ruleerrors.ErrNoBags,
			"cannot assemble a block out of no bags")
	}

	height := bags[0].Height
	if prev != nil && height != prev.Height+1 {
		return nil, ruleerrors.NewRuleError(ruleerrors.ErrNotContiguous,
			"bags target height %d but the prior block is at height %d",
			height, prev.Height)
	}

	// The assembler owns the order from here on: the bag id list inside the
	// block and the bid index used for reward contracts both follow the
	// canonical order.
	bags = append([]*externalapi.DomainBag{}, bags...)
	ba.weightManager.SortBags(bags)

	// The input is a set. A bag listed twice would count its bid's burn
	// twice in the block's weight.
	seenBagIDs := make(map[externalapi.DomainHash]struct{}, len(bags))
	for _, bag := range bags {
		bagID := *consensushashing.BagID(bag, ba.params)
		if _, ok := seenBagIDs[bagID]; ok {
			return nil, ruleerrors.NewRuleError(ruleerrors.ErrDuplicateBag,
				"bag %s is listed more than once", bagID)
		}
		seenBagIDs[bagID] = struct{}{}
	}

	sizeLimit := ba.sizeFunc(height)
	for _, bag := range bags {
		if bag.Size() > sizeLimit {
			return nil, ruleerrors.NewRuleError(ruleerrors.ErrBagSizeExceeded,
				"bag of size %d exceeds the limit %d at height %d",
				bag.Size(), sizeLimit, height)
		}
	}

	// Step 1: reward allocations, staged as maturation entries. Nothing is
	// committed until the whole block succeeds.
	allocations, err := ba.rewardManager.CalcAllocations(height, bags)
	if err != nil {
		return nil, err
	}
	maturationEntries := make([]*externalapi.MaturationEntry, len(allocations))
	for i, allocation := range allocations {
		maturationEntries[i] = &externalapi.MaturationEntry{
			ContractID:        allocation.ContractID,
			Address:           allocation.Address,
			Amount:            allocation.Amount,
			SpendableAtHeight: height + ba.params.MaturationPeriod,
		}
	}
	bagIDs := make([]*externalapi.DomainHash, len(allocations))
	for i, allocation := range allocations {
		bagIDs[i] = allocation.BagID
	}

	// Step 2: every pair of bags must be mergeable. A single bag still gets
	// its standalone validation.
	if len(bags) == 1 {
		if err := ba.bagValidator.ValidateBag(bags[0]); err != nil {
			return nil, err
		}
	}
	for i := 0; i < len(bags); i++ {
		for j := i + 1; j < len(bags); j++ {
			err := ba.bagValidator.CheckCompatible(bagIDs[i], bagIDs[j], bags[i], bags[j])
			if err != nil {
				return nil, err
			}
		}
	}

	// Step 3: a single ext blob shared by all bags becomes the block's ext.
	ext := bags[0].Ext
	for _, bag := range bags[1:] {
		if !bytes.Equal(bag.Ext, ext) {
			return nil, ruleerrors.NewRuleError(ruleerrors.ErrExtMismatch,
				"bags carry different ext blobs")
		}
	}

	// Step 4: each bag's timestamp must be after the median time past of its
	// ancestor window and within wall-clock drift.
	maxTimestamp := nowMS + ba.params.MaxTimestampDrift.Milliseconds()
	for i, bag := range bags {
		medianTimePast, err := ba.medianTimePast(bag)
		if err != nil {
			return nil, err
		}
		if bag.TimestampMS <= medianTimePast {
			return nil, ruleerrors.NewRuleError(ruleerrors.ErrTimestampTooOld,
				"bag %s timestamp %d is not after the median time past %d",
				bagIDs[i], bag.TimestampMS, medianTimePast)
		}
		if bag.TimestampMS > maxTimestamp {
			return nil, ruleerrors.NewRuleError(ruleerrors.ErrTimestampTooFarInFuture,
				"bag %s timestamp %d is beyond the tolerated drift (max %d)",
				bagIDs[i], bag.TimestampMS, maxTimestamp)
		}
	}

	// Step 5: block timestamp is the lower median of bag timestamps. Every
	// bag's own timestamp passed step 4, so the median does too.
	timestamps := make([]int64, len(bags))
	for i, bag := range bags {
		timestamps[i] = bag.TimestampMS
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	blockTimestamp := timestamps[(len(timestamps)-1)/2]

	// Steps 6 and 7: round-robin merge across bags, skipping canonical ids
	// already taken.
	transactions := mergeTransactions(bags)

	// Step 8: every surviving transaction must be valid under the block
	// timestamp.
	for i, tx := range transactions {
		if tx.MinTimeMS > blockTimestamp {
			return nil, ruleerrors.NewErrInvalidTransaction(i, tx.ID,
				"not yet valid at the block timestamp")
		}
		if tx.MaxTimeMS != 0 && tx.MaxTimeMS < blockTimestamp {
			return nil, ruleerrors.NewErrInvalidTransaction(i, tx.ID,
				"expired at the block timestamp")
		}
	}

	blockSize := blockOverheadSize + uint64(len(bags))*externalapi.DomainHashSize
	for _, tx := range transactions {
		blockSize += tx.Mass
	}
	if blockSize > sizeLimit {
		return nil, ruleerrors.NewRuleError(ruleerrors.ErrBlockSizeExceeded,
			"assembled block of size %d exceeds the limit %d at height %d",
			blockSize, sizeLimit, height)
	}

	// Steps 9, 11 and 12 mutate the accumulator. The snapshot makes the
	// whole remainder of the pipeline one transaction.
	ba.state.Snapshot(height)

	// Step 9: apply the merged sequence. The accumulator rejects the batch
	// on the first missing input, which is a double spend against either the
	// committed state or an earlier transaction in the sequence.
	if _, err := ba.state.Apply(transactions); err != nil {
		if restoreErr := ba.state.RestoreSnapshot(height); restoreErr != nil {
			return nil, restoreErr
		}
		return nil, err
	}

	// Step 10: txroot over the final sequence, witness included.
	txRoot := consensushashing.TransactionsRoot(transactions)

	// Step 11: commit the staged reward contract ids through a mint
	// transaction, so the accumulator sees one uniform mutation interface.
	contractIDs := make([]*externalapi.DomainHash, len(allocations))
	for i, allocation := range allocations {
		contractIDs[i] = allocation.ContractID
	}
	mint := &externalapi.DomainTransaction{
		ID:      consensushashing.MintTransactionID(height, contractIDs, ba.params),
		Outputs: contractIDs,
	}
	if _, err := ba.state.Apply([]*externalapi.DomainTransaction{mint}); err != nil {
		if restoreErr := ba.state.RestoreSnapshot(height); restoreErr != nil {
			return nil, restoreErr
		}
		return nil, err
	}

	// Step 12: the accumulator's root after both applications is the block's
	// state commitment.
	block := &externalapi.DomainBlock{
		Height:      height,
		Prev:        prevID,
		TimestampMS: blockTimestamp,
		TxRoot:      txRoot,
		StateRoot:   ba.state.Root(),
		Bags:        bagIDs,
		Ext:         ext,
	}

	return &model.AssembledBlock{
		Block:             block,
		BlockID:           consensushashing.BlockID(block, ba.params),
		Transactions:      transactions,
		MaturationEntries: maturationEntries,
	}, nil
}

// mergeTransactions interleaves bag transactions round-robin, one per bag per
// turn, skipping exhausted bags and canonical ids already taken.
func mergeTransactions(bags []*externalapi.DomainBag) []*externalapi.DomainTransaction {
	total := 0
	for _, bag := range bags {
		total += len(bag.Transactions)
	}

	merged := make([]*externalapi.DomainTransaction, 0, total)
	taken := make(map[externalapi.DomainHash]struct{}, total)
	cursors := make([]int, len(bags))
	for {
		exhausted := true
		for i, bag := range bags {
			if cursors[i] >= len(bag.Transactions) {
				continue
			}
			exhausted = false
			tx := bag.Transactions[cursors[i]]
			cursors[i]++
			if _, ok := taken[*tx.ID]; ok {
				continue
			}
			taken[*tx.ID] = struct{}{}
			merged = append(merged, tx)
		}
		if exhausted {
			return merged
		}
	}
}

// medianTimePast is the lower median of the timestamps of every ancestor
// inside the bag's maturation window. A bag with an empty window (near
// genesis) has a median time past of zero.
func (ba *blockAssembler) medianTimePast(bag *externalapi.DomainBag) (int64, error) {
	window, err := ba.bagValidator.AncestorWindow(bag)
	if err != nil {
		return 0, err
	}

	timestamps := make([]int64, 0, len(window))
	for _, ids := range window {
		for _, id := range ids {
			ancestor, err := ba.bagStore.Bag(id)
			if err != nil {
				return 0, err
			}
			timestamps = append(timestamps, ancestor.TimestampMS)
		}
	}
	if len(timestamps) == 0 {
		return 0, nil
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	return timestamps[(len(timestamps)-1)/2], nil
}
