package bagstore

import (
	"github.com/flamenet/flamed/domain/consensus/model"
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
	"github.com/flamenet/flamed/domain/consensus/ruleerrors"
)

// bagStore is an in-memory arena of published bags keyed by id. Bags are
// content-addressed and immutable, so entries are never updated.
type bagStore struct {
	bags map[externalapi.DomainHash]*externalapi.DomainBag
}

// New instantiates a new BagStore
func New() model.BagStore {
	return &bagStore{
		bags: make(map[externalapi.DomainHash]*externalapi.DomainBag),
	}
}

func (bs *bagStore) Add(bagID *externalapi.DomainHash, bag *externalapi.DomainBag) error {
	if _, ok := bs.bags[*bagID]; ok {
		return ruleerrors.NewRuleError(ruleerrors.ErrDuplicateBag, "bag %s already exists", bagID)
	}
	bs.bags[*bagID] = bag.Clone()
	return nil
}

func (bs *bagStore) Bag(bagID *externalapi.DomainHash) (*externalapi.DomainBag, error) {
	bag, ok := bs.bags[*bagID]
	if !ok {
		return nil, ruleerrors.NewRuleError(ruleerrors.ErrUnknownBag, "bag %s not found", bagID)
	}
	return bag, nil
}

func (bs *bagStore) Has(bagID *externalapi.DomainHash) bool {
	_, ok := bs.bags[*bagID]
	return ok
}
