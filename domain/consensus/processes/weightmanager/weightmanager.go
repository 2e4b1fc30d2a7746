package weightmanager

import (
	"math"
	"sort"

	"github.com/flamenet/flamed/domain/consensus/model"
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
	"github.com/flamenet/flamed/domain/consensus/ruleerrors"
	"github.com/flamenet/flamed/domain/consensus/utils/consensushashing"
	"github.com/flamenet/flamed/domain/dagconfig"
)

// weightManager derives chain weight from burned value, discounted by how
// late each bid confirmed on the anchor chain. Weights are memoized per
// block id; the cache is only valid for one anchor tip and must be dropped
// via InvalidateCache whenever the tip moves.
type weightManager struct {
	params      *dagconfig.Params
	anchorIndex model.AnchorIndex
	bagStore    model.BagStore
	blockStore  model.BlockStore

	blockWeightCache map[externalapi.DomainHash]float64
	chainWeightCache map[externalapi.DomainHash]float64
}

// New instantiates a new WeightManager
func New(params *dagconfig.Params, anchorIndex model.AnchorIndex,
	bagStore model.BagStore, blockStore model.BlockStore) model.WeightManager {

	return &weightManager{
		params:           params,
		anchorIndex:      anchorIndex,
		bagStore:         bagStore,
		blockStore:       blockStore,
		blockWeightCache: make(map[externalapi.DomainHash]float64),
		chainWeightCache: make(map[externalapi.DomainHash]float64),
	}
}

// AdjustedBurn discounts a bid amount by halving it once per anchor block of
// confirmation delay. A bid confirmed on time keeps its full amount; a delay
// of 64 or more blocks shifts everything out.
func (wm *weightManager) AdjustedBurn(amount uint64, delay uint64) uint64 {
	if delay >= 64 {
		return 0
	}
	return amount >> delay
}

// BlockWeight is log2 of the block's summed adjusted burn. A block whose
// bids are all unconfirmed (or fully discounted) weighs nothing.
func (wm *weightManager) BlockWeight(block *externalapi.DomainBlock) (float64, error) {
	blockID := consensushashing.BlockID(block, wm.params)
	if weight, ok := wm.blockWeightCache[*blockID]; ok {
		return weight, nil
	}

	totalAdjusted := uint64(0)
	seen := make(map[externalapi.DomainHash]struct{}, len(block.Bags))
	for _, bagID := range block.Bags {
		// Weight is defined over the set of bags. A bag id listed twice
		// must not count its bid's burn twice.
		if _, ok := seen[*bagID]; ok {
			continue
		}
		seen[*bagID] = struct{}{}
		bag, err := wm.bagStore.Bag(bagID)
		if err != nil {
			return 0, err
		}
		confirmedAt, ok := wm.anchorIndex.ConfirmationHeight(bagID)
		if !ok {
			continue
		}
		target := wm.params.TargetAnchorHeight(bag.Height)
		delay := uint64(0)
		if confirmedAt > target {
			delay = confirmedAt - target
		}
		totalAdjusted += wm.AdjustedBurn(bag.BidAmount, delay)
	}

	weight := 0.0
	if totalAdjusted > 0 {
		weight = math.Log2(float64(totalAdjusted))
	}
	wm.blockWeightCache[*blockID] = weight
	return weight, nil
}

// ChainWeight sums block weights along the chain from genesis to the given
// tip. Prefixes hit the memoized suffix of previous walks, so extending a
// chain by one block costs one block weight.
func (wm *weightManager) ChainWeight(tipID *externalapi.DomainHash) (float64, error) {
	if weight, ok := wm.chainWeightCache[*tipID]; ok {
		return weight, nil
	}

	block, err := wm.blockStore.Block(tipID)
	if err != nil {
		return 0, ruleerrors.NewRuleError(ruleerrors.ErrUnknownPrev,
			"chain references unknown block %s", tipID)
	}

	prevWeight := 0.0
	if block.Prev != nil {
		prevWeight, err = wm.ChainWeight(block.Prev)
		if err != nil {
			return 0, err
		}
	}

	blockWeight, err := wm.BlockWeight(block)
	if err != nil {
		return 0, err
	}

	weight := prevWeight + blockWeight
	wm.chainWeightCache[*tipID] = weight
	return weight, nil
}

// SortBags orders bags canonically: descending bid amount, ties broken by
// ascending anchor transaction id.
func (wm *weightManager) SortBags(bags []*externalapi.DomainBag) {
	sort.SliceStable(bags, func(i, j int) bool {
		if bags[i].BidAmount != bags[j].BidAmount {
			return bags[i].BidAmount > bags[j].BidAmount
		}
		return bags[i].BidTxID.Less(bags[j].BidTxID)
	})
}

func (wm *weightManager) InvalidateCache() {
	wm.blockWeightCache = make(map[externalapi.DomainHash]float64)
	wm.chainWeightCache = make(map[externalapi.DomainHash]float64)
}
