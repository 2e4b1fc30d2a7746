package consensus

import (
	"time"

	"github.com/flamenet/flamed/domain/anchorindex"
	"github.com/flamenet/flamed/domain/consensus/datastructures/bagstore"
	"github.com/flamenet/flamed/domain/consensus/datastructures/blockstore"
	"github.com/flamenet/flamed/domain/consensus/datastructures/maturationstore"
	"github.com/flamenet/flamed/domain/consensus/model"
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
	"github.com/flamenet/flamed/domain/consensus/processes/bagvalidator"
	"github.com/flamenet/flamed/domain/consensus/processes/blockassembler"
	"github.com/flamenet/flamed/domain/consensus/processes/reorgmanager"
	"github.com/flamenet/flamed/domain/consensus/processes/rewardmanager"
	"github.com/flamenet/flamed/domain/consensus/processes/weightmanager"
	"github.com/flamenet/flamed/domain/dagconfig"
)

// Config carries everything a Consensus instance is built from. State is the
// external transaction executor; AnchorStore persists the bid index (use
// anchorindex.NewMemoryStore for an ephemeral node); AnchorTip is the anchor
// header the bid index starts following from, or nil to start empty.
type Config struct {
	Params      *dagconfig.Params
	State       externalapi.StateAccumulator
	AnchorStore anchorindex.Store
	AnchorTip   *externalapi.AnchorHeader

	// SizeFunc overrides the network's fallback block size limit per height.
	// May be nil.
	SizeFunc model.SizeFunc

	// NowMS overrides the wall clock, in milliseconds. May be nil.
	NowMS func() int64
}

// Factory instantiates new Consensuses
type Factory interface {
	NewConsensus(config *Config) (*Consensus, error)
}

type factory struct{}

// NewFactory creates a new Consensus factory
func NewFactory() Factory {
	return &factory{}
}

func (f *factory) NewConsensus(config *Config) (*Consensus, error) {
	nowMS := config.NowMS
	if nowMS == nil {
		nowMS = func() int64 { return time.Now().UnixMilli() }
	}

	bagStore := bagstore.New()
	blockStore := blockstore.New()
	maturationStore := maturationstore.New()
	anchorIndex := anchorindex.New(config.Params, config.AnchorStore, config.AnchorTip)

	bagValidator := bagvalidator.New(config.Params, bagStore)
	rewardManager := rewardmanager.New(config.Params)
	weightManager := weightmanager.New(config.Params, anchorIndex, bagStore, blockStore)
	blockAssembler := blockassembler.New(config.Params, bagValidator, rewardManager,
		weightManager, bagStore, config.State, config.SizeFunc)
	reorgManager := reorgmanager.New(config.Params, blockAssembler, weightManager,
		bagStore, blockStore, maturationStore, config.State, nowMS)

	c := &Consensus{
		params:          config.Params,
		bagStore:        bagStore,
		blockStore:      blockStore,
		maturationStore: maturationStore,
		anchorIndex:     anchorIndex,
		bagValidator:    bagValidator,
		rewardManager:   rewardManager,
		weightManager:   weightManager,
		blockAssembler:  blockAssembler,
		reorgManager:    reorgManager,
		state:           config.State,
		nowMS:           nowMS,
		pendingBags:     make(map[externalapi.DomainHash]*externalapi.DomainBag),
	}
	c.refreshSnapshot()
	return c, nil
}
