package maturationstore

import (
	"github.com/flamenet/flamed/domain/consensus/model"
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
)

// maturationStore tracks staged reward maturation entries per committing
// block, so a rolled-back block takes exactly its own entries with it.
type maturationStore struct {
	entriesByBlock map[externalapi.DomainHash][]*externalapi.MaturationEntry
}

// New instantiates a new MaturationStore
func New() model.MaturationStore {
	return &maturationStore{
		entriesByBlock: make(map[externalapi.DomainHash][]*externalapi.MaturationEntry),
	}
}

func (ms *maturationStore) AddBlockEntries(blockID *externalapi.DomainHash, entries []*externalapi.MaturationEntry) {
	cloned := make([]*externalapi.MaturationEntry, len(entries))
	for i, entry := range entries {
		cloned[i] = entry.Clone()
	}
	ms.entriesByBlock[*blockID] = cloned
}

func (ms *maturationStore) RemoveBlockEntries(blockID *externalapi.DomainHash) {
	delete(ms.entriesByBlock, *blockID)
}

func (ms *maturationStore) SpendableAt(height uint64) []*externalapi.MaturationEntry {
	var spendable []*externalapi.MaturationEntry
	for _, entries := range ms.entriesByBlock {
		for _, entry := range entries {
			if entry.SpendableAtHeight <= height {
				spendable = append(spendable, entry)
			}
		}
	}
	return spendable
}

func (ms *maturationStore) BlockEntries(blockID *externalapi.DomainHash) []*externalapi.MaturationEntry {
	return ms.entriesByBlock[*blockID]
}
