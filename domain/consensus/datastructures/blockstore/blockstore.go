package blockstore

import (
	"github.com/flamenet/flamed/domain/consensus/model"
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
	"github.com/pkg/errors"
)

// blockStore is an in-memory arena of assembled blocks keyed by id.
type blockStore struct {
	blocks map[externalapi.DomainHash]*externalapi.DomainBlock
}

// New instantiates a new BlockStore
func New() model.BlockStore {
	return &blockStore{
		blocks: make(map[externalapi.DomainHash]*externalapi.DomainBlock),
	}
}

func (bs *blockStore) Add(blockID *externalapi.DomainHash, block *externalapi.DomainBlock) error {
	if _, ok := bs.blocks[*blockID]; ok {
		return errors.Errorf("block %s already exists", blockID)
	}
	bs.blocks[*blockID] = block.Clone()
	return nil
}

func (bs *blockStore) Block(blockID *externalapi.DomainHash) (*externalapi.DomainBlock, error) {
	block, ok := bs.blocks[*blockID]
	if !ok {
		return nil, errors.Errorf("block %s not found", blockID)
	}
	return block, nil
}

func (bs *blockStore) Has(blockID *externalapi.DomainHash) bool {
	_, ok := bs.blocks[*blockID]
	return ok
}
