package dagconfig

import (
	"time"
)

// These constants define consensus behavior shared by every network. Only
// the fields that genuinely differ between networks live in Params.
const (
	// baseInflation is the per-block inflation amount at launch, before
	// any reduction has taken place.
	baseInflation uint64 = 50_000_000

	// inflationReductionInterval is the number of blocks in each inflation
	// plateau. After each interval the inflation amount is halved (integer
	// floor) until it reaches zero.
	inflationReductionInterval uint64 = 210_000

	// maxTimestampDrift is how far into the future a bag timestamp may be,
	// relative to the assembling node's wall clock.
	maxTimestampDrift = 2 * time.Hour
)

// Params defines a Flame network by its parameters. These parameters may be
// used by applications to differentiate networks as well as identifiers for
// one network from those intended for use on another network.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// IDPrefix is written over the first two bytes of every BagID, BlockID
	// and reward contract ID produced for this network, so that identifiers
	// from different networks can never collide.
	IDPrefix [2]byte

	// InitialHeight (H0) is the anchor-chain height the sidechain genesis
	// is aligned to. A bid targeting sidechain height h is expected to
	// confirm at anchor height h+InitialHeight; bid locktimes must equal
	// that target.
	InitialHeight uint64

	// MaturationPeriod is the number of sidechain blocks that must elapse
	// before a block reward becomes spendable. It is also the depth of the
	// ancestor window that merged bags must agree on.
	MaturationPeriod uint64

	// BaseInflation is the starting per-block inflation amount.
	BaseInflation uint64

	// InflationReductionInterval is the plateau length between halvings.
	InflationReductionInterval uint64

	// AnchorConfirmationDepth is the number of anchor blocks that must build
	// on top of an anchor block before bids inside it are treated as final
	// rather than provisional.
	AnchorConfirmationDepth uint64

	// MaxTimestampDrift is the tolerated future drift of bag timestamps.
	MaxTimestampDrift time.Duration

	// MaxBlockSize is the fallback block size limit in bytes, used when no
	// external size-governance function is installed.
	MaxBlockSize uint64
}

// MainnetParams defines the network parameters for the main Flame network.
var MainnetParams = Params{
	Name:     "mainnet",
	IDPrefix: [2]byte{0xF1, 0xAE},

	InitialHeight:              650_000,
	MaturationPeriod:           100,
	BaseInflation:              baseInflation,
	InflationReductionInterval: inflationReductionInterval,
	AnchorConfirmationDepth:    6,
	MaxTimestampDrift:          maxTimestampDrift,
	MaxBlockSize:               1_000_000,
}

// TestnetParams defines the network parameters for the test Flame network.
var TestnetParams = Params{
	Name:     "testnet-1",
	IDPrefix: [2]byte{0xF1, 0x01},

	InitialHeight:              1_900_000,
	MaturationPeriod:           100,
	BaseInflation:              baseInflation,
	InflationReductionInterval: inflationReductionInterval,
	AnchorConfirmationDepth:    1,
	MaxTimestampDrift:          maxTimestampDrift,
	MaxBlockSize:               1_000_000,
}

// SimnetParams defines the network parameters for the simulation network.
// It is intended for private integration tests, so rewards mature quickly
// and anchor confirmations are immediate.
var SimnetParams = Params{
	Name:     "simnet",
	IDPrefix: [2]byte{0xF1, 0xFF},

	InitialHeight:              0,
	MaturationPeriod:           10,
	BaseInflation:              baseInflation,
	InflationReductionInterval: inflationReductionInterval,
	AnchorConfirmationDepth:    1,
	MaxTimestampDrift:          maxTimestampDrift,
	MaxBlockSize:               1_000_000,
}

// TargetAnchorHeight returns the anchor-chain height at which a bid for the
// given sidechain height is expected to confirm.
func (p *Params) TargetAnchorHeight(sidechainHeight uint64) uint64 {
	return sidechainHeight + p.InitialHeight
}
