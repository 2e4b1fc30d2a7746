package model

import (
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
)

// BagValidator decides whether bags can be merged into one block.
type BagValidator interface {
	// ValidateBag checks a bag's standalone invariants: ancestors known,
	// height strictly above every ancestor's height.
	ValidateBag(bag *externalapi.DomainBag) error

	// CheckCompatible returns nil when the two bags are compatible, or an
	// ErrIncompatibleBags/ErrAncestorMismatch RuleError describing the
	// conflict.
	CheckCompatible(firstID, secondID *externalapi.DomainHash,
		first, second *externalapi.DomainBag) error

	// AncestorWindow resolves the bag's ancestor set per height over the
	// maturation window, verifying path-independence inside the window.
	AncestorWindow(bag *externalapi.DomainBag) (AncestorWindow, error)
}

// AncestorWindow maps each height inside a bag's maturation window to the
// set of ancestor bag ids at that height.
type AncestorWindow map[uint64][]*externalapi.DomainHash

// SizeFunc is the externally governed block/bag size limit per height, in
// bytes.
type SizeFunc func(height uint64) uint64

// AssembledBlock is the output of deterministic block assembly: the block,
// its id, the final merged transaction sequence, and the staged reward
// maturation entries. Staged entries are committed by the caller only when
// the block itself is committed.
type AssembledBlock struct {
	Block             *externalapi.DomainBlock
	BlockID           *externalapi.DomainHash
	Transactions      []*externalapi.DomainTransaction
	MaturationEntries []*externalapi.MaturationEntry
}

// BlockAssembler merges a set of mutually compatible bags into a block,
// applying the result to the state accumulator atomically.
type BlockAssembler interface {
	// AssembleBlock runs the strictly ordered assembly pipeline. Any
	// failure leaves the state accumulator untouched.
	AssembleBlock(prevID *externalapi.DomainHash, prev *externalapi.DomainBlock,
		bags []*externalapi.DomainBag, nowMS int64) (*AssembledBlock, error)
}

// RewardAllocation is one bid's award in an assembled block.
type RewardAllocation struct {
	BagID      *externalapi.DomainHash
	ContractID *externalapi.DomainHash
	Address    []byte
	Amount     uint64
}

// RewardManager computes the inflation schedule and the per-bid reward
// split.
type RewardManager interface {
	// BlockInflation returns the inflation amount for the given height.
	BlockInflation(height uint64) uint64

	// CalcAllocations splits the block's inflation and fee pools between
	// the given bags, proportionally to burned value. Bags must already be
	// in canonical order; the bid index inside the block is the bag's
	// position.
	CalcAllocations(height uint64, bags []*externalapi.DomainBag) ([]*RewardAllocation, error)
}

// ChainStatus is the reorg coordinator's current mode.
type ChainStatus byte

const (
	// StatusFollowing is normal single-chain extension.
	StatusFollowing ChainStatus = iota

	// StatusValidating means a candidate chain is being replayed against a
	// new or competing base.
	StatusValidating
)

func (s ChainStatus) String() string {
	switch s {
	case StatusFollowing:
		return "following"
	case StatusValidating:
		return "validating"
	}
	return "unknown"
}

// ReorgManager owns the canonical chain. It extends the chain with freshly
// assembled blocks, evaluates competing chains by weight, and performs
// block-granular rollback and replay. A candidate chain that fails replay is
// banned by tip identity and never retried.
type ReorgManager interface {
	// Status returns the coordinator's current mode.
	Status() ChainStatus

	// TipID returns the canonical tip's block id, or nil before the first
	// block.
	TipID() *externalapi.DomainHash

	// Tip returns the canonical tip block, or nil before the first block.
	Tip() *externalapi.DomainBlock

	// CommitTipBlock extends the canonical chain with a freshly assembled
	// block whose prev is the current tip.
	CommitTipBlock(assembled *AssembledBlock) error

	// AddCandidateBlock records a competing block without switching to it.
	AddCandidateBlock(blockID *externalapi.DomainHash, block *externalapi.DomainBlock) error

	// ConsiderChain switches to the chain ending at the given tip if its
	// total weight strictly exceeds the current chain's. On replay failure
	// the candidate is banned and the previous chain is restored.
	ConsiderChain(tipID *externalapi.DomainHash) error

	// HandleAnchorReorg reacts to an anchor-chain reorganization: weights
	// are recomputed and the heaviest known chain is re-selected.
	HandleAnchorReorg() error

	// IsBanned returns whether the given chain identity was rejected.
	IsBanned(tipID *externalapi.DomainHash) bool
}

// WeightManager computes burn-derived weights and compares chains.
// All results depend on the anchor index and are recomputed on demand;
// caches are invalidated on every anchor tip change.
type WeightManager interface {
	// AdjustedBurn discounts a bid amount by its anchor confirmation delay.
	AdjustedBurn(amount uint64, delay uint64) uint64

	// BlockWeight returns log2 of the summed adjusted burn of the block's
	// bags.
	BlockWeight(block *externalapi.DomainBlock) (float64, error)

	// ChainWeight returns the cumulative weight of the chain ending at the
	// given block id.
	ChainWeight(tipID *externalapi.DomainHash) (float64, error)

	// SortBags orders bags canonically: descending bid amount, then
	// ascending anchor transaction id.
	SortBags(bags []*externalapi.DomainBag)

	// InvalidateCache drops all memoized weights. Must be called on every
	// anchor-chain tip change.
	InvalidateCache()
}
