package rewardmanager

import (
	"github.com/flamenet/flamed/domain/consensus/model"
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
	"github.com/flamenet/flamed/domain/consensus/ruleerrors"
	"github.com/flamenet/flamed/domain/consensus/utils/consensushashing"
	"github.com/flamenet/flamed/domain/dagconfig"
	"github.com/holiman/uint256"
)

type rewardManager struct {
	params *dagconfig.Params
}

// New instantiates a new RewardManager
func New(params *dagconfig.Params) model.RewardManager {
	return &rewardManager{params: params}
}

// BlockInflation returns the inflation amount for the given sidechain
// height. The amount starts at BaseInflation and is halved (integer floor)
// every InflationReductionInterval blocks until it reaches zero, producing
// flat plateaus of exactly one interval each.
func (rm *rewardManager) BlockInflation(height uint64) uint64 {
	inflation := rm.params.BaseInflation
	remaining := height
	for remaining >= rm.params.InflationReductionInterval && inflation != 0 {
		inflation /= 2
		remaining -= rm.params.InflationReductionInterval
	}
	return inflation
}

// CalcAllocations splits the block's inflation and per-transaction fee pools
// between the given bags proportionally to burned value.
//
// For bag i with burn x_i out of total burn X, the inflation share is
// floor(R * x_i / X). For each transaction k carried by the bag, with fee
// pool fee_k and Z_k the summed burn of all bags carrying k, the fee share
// is floor(fee_k * x_i / Z_k). Intermediate products are computed in 256-bit
// space so 64-bit operands can never overflow.
func (rm *rewardManager) CalcAllocations(height uint64, bags []*externalapi.DomainBag) ([]*model.RewardAllocation, error) {
	if len(bags) == 0 {
		return nil, ruleerrors.NewRuleError(ruleerrors.ErrNoBags, "no bags to allocate rewards for")
	}

	totalBurn := uint64(0)
	for _, bag := range bags {
		totalBurn += bag.BidAmount
	}
	if totalBurn == 0 {
		return nil, ruleerrors.NewRuleError(ruleerrors.ErrZeroBurn,
			"bags at height %d carry no burned value", height)
	}

	// Z_k per canonical transaction id: the summed burn of every bag
	// carrying transaction k.
	burnByTx := make(map[externalapi.DomainHash]uint64)
	for _, bag := range bags {
		for _, tx := range uniqueTransactions(bag) {
			burnByTx[*tx.ID] += bag.BidAmount
		}
	}

	inflation := rm.BlockInflation(height)

	allocations := make([]*model.RewardAllocation, len(bags))
	for i, bag := range bags {
		award := mulDiv(inflation, bag.BidAmount, totalBurn)
		for _, tx := range uniqueTransactions(bag) {
			award += mulDiv(tx.Fee, bag.BidAmount, burnByTx[*tx.ID])
		}

		bagID := consensushashing.BagID(bag, rm.params)
		allocations[i] = &model.RewardAllocation{
			BagID:      bagID,
			ContractID: consensushashing.RewardContractID(bagID, uint64(i), rm.params),
			Address:    bag.RewardAddress,
			Amount:     award,
		}
	}
	return allocations, nil
}

// uniqueTransactions returns the bag's transactions with repeated canonical
// ids skipped, so a repeated transaction can't double its fee share.
func uniqueTransactions(bag *externalapi.DomainBag) []*externalapi.DomainTransaction {
	seen := make(map[externalapi.DomainHash]struct{}, len(bag.Transactions))
	unique := make([]*externalapi.DomainTransaction, 0, len(bag.Transactions))
	for _, tx := range bag.Transactions {
		if _, ok := seen[*tx.ID]; ok {
			continue
		}
		seen[*tx.ID] = struct{}{}
		unique = append(unique, tx)
	}
	return unique
}

// mulDiv returns floor(a*b/c) with a 256-bit intermediate product.
func mulDiv(a, b, c uint64) uint64 {
	product := new(uint256.Int).Mul(
		new(uint256.Int).SetUint64(a),
		new(uint256.Int).SetUint64(b))
	return product.Div(product, new(uint256.Int).SetUint64(c)).Uint64()
}
