package anchorindex

import (
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
)

// memoryStore keeps bid records in maps. It mirrors the leveldb store's
// semantics exactly, including first-bid-wins.
type memoryStore struct {
	recordsByBlock map[externalapi.DomainHash][]*BidRecord
	recordByBag    map[externalapi.DomainHash]*BidRecord
}

// NewMemoryStore returns an empty in-memory bid record store.
func NewMemoryStore() Store {
	return &memoryStore{
		recordsByBlock: make(map[externalapi.DomainHash][]*BidRecord),
		recordByBag:    make(map[externalapi.DomainHash]*BidRecord),
	}
}

func (ms *memoryStore) StoreRecord(record *BidRecord) error {
	if _, ok := ms.recordByBag[*record.BagID]; ok {
		return nil
	}
	clone := record.Clone()
	ms.recordsByBlock[*record.AnchorBlockHash] = append(ms.recordsByBlock[*record.AnchorBlockHash], clone)
	ms.recordByBag[*record.BagID] = clone
	return nil
}

func (ms *memoryStore) RecordByBag(bagID *externalapi.DomainHash) (*BidRecord, error) {
	record, ok := ms.recordByBag[*bagID]
	if !ok {
		return nil, nil
	}
	return record.Clone(), nil
}

func (ms *memoryStore) RecordsByAnchorBlock(anchorBlockHash *externalapi.DomainHash) ([]*BidRecord, error) {
	records := ms.recordsByBlock[*anchorBlockHash]
	clones := make([]*BidRecord, len(records))
	for i, record := range records {
		clones[i] = record.Clone()
	}
	return clones, nil
}

func (ms *memoryStore) RemoveByAnchorBlock(anchorBlockHash *externalapi.DomainHash) error {
	for _, record := range ms.recordsByBlock[*anchorBlockHash] {
		delete(ms.recordByBag, *record.BagID)
	}
	delete(ms.recordsByBlock, *anchorBlockHash)
	return nil
}

func (ms *memoryStore) AnchorBlockCount() (uint64, error) {
	return uint64(len(ms.recordsByBlock)), nil
}
