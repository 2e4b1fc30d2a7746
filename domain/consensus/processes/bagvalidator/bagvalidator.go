package bagvalidator

import (
	"sort"

	"github.com/flamenet/flamed/domain/consensus/model"
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
	"github.com/flamenet/flamed/domain/consensus/ruleerrors"
	"github.com/flamenet/flamed/domain/dagconfig"
)

type bagValidator struct {
	params   *dagconfig.Params
	bagStore model.BagStore
}

// New instantiates a new BagValidator
func New(params *dagconfig.Params, bagStore model.BagStore) model.BagValidator {
	return &bagValidator{
		params:   params,
		bagStore: bagStore,
	}
}

// heightSet is the set of ancestor bag ids claimed at one height.
type heightSet map[externalapi.DomainHash]struct{}

// ancestorView maps each window height to the ancestor set resolved there.
type ancestorView map[uint64]heightSet

func (v *bagValidator) ValidateBag(bag *externalapi.DomainBag) error {
	for _, ancestorID := range bag.Ancestors {
		ancestor, err := v.bagStore.Bag(ancestorID)
		if err != nil {
			return ruleerrors.NewRuleError(ruleerrors.ErrMissingAncestor,
				"bag at height %d lists unknown ancestor %s", bag.Height, ancestorID)
		}
		if ancestor.Height >= bag.Height {
			return ruleerrors.NewRuleError(ruleerrors.ErrWrongBagHeight,
				"bag at height %d lists ancestor %s at height %d",
				bag.Height, ancestorID, ancestor.Height)
		}
	}

	// Resolving the window walks every reachable edge, so this also catches
	// height violations and missing bags deeper in the ancestry.
	_, err := v.AncestorWindow(bag)
	return err
}

// AncestorWindow resolves the per-height ancestor sets of the bag over
// heights [H-1, H-M], H being the bag's height and M the maturation period.
// Ancestors below the window are not resolved.
//
// Stored bags are content-addressed, so a single ancestor always resolves the
// same history. Disagreement can still arise between two distinct ancestors
// at the same window height: the consistency rule requires them to claim
// identical sets at every deeper height both of their histories cover.
func (v *bagValidator) AncestorWindow(bag *externalapi.DomainBag) (model.AncestorWindow, error) {
	low := uint64(0)
	if bag.Height > v.params.MaturationPeriod {
		low = bag.Height - v.params.MaturationPeriod
	}

	views := make(map[externalapi.DomainHash]ancestorView)
	merged := make(ancestorView)
	for _, ancestorID := range bag.Ancestors {
		ancestor, err := v.bagStore.Bag(ancestorID)
		if err != nil {
			return nil, ruleerrors.NewRuleError(ruleerrors.ErrMissingAncestor,
				"bag at height %d lists unknown ancestor %s", bag.Height, ancestorID)
		}
		if ancestor.Height >= bag.Height {
			return nil, ruleerrors.NewRuleError(ruleerrors.ErrWrongBagHeight,
				"bag at height %d lists ancestor %s at height %d",
				bag.Height, ancestorID, ancestor.Height)
		}
		if ancestor.Height < low {
			continue
		}
		if err := v.resolveView(ancestorID, ancestor, low, views); err != nil {
			return nil, err
		}
		if merged[ancestor.Height] == nil {
			merged[ancestor.Height] = make(heightSet)
		}
		merged[ancestor.Height][*ancestorID] = struct{}{}
		for height, ids := range views[*ancestorID] {
			if merged[height] == nil {
				merged[height] = make(heightSet)
			}
			for id := range ids {
				merged[height][id] = struct{}{}
			}
		}
	}

	if err := v.checkPathConsistency(merged, views); err != nil {
		return nil, err
	}

	window := make(model.AncestorWindow, len(merged))
	for height, ids := range merged {
		window[height] = sortedHashes(ids)
	}
	return window, nil
}

// resolveView computes the transitive per-height ancestor view of the bag
// with the given id, down to the low height, memoizing into views.
func (v *bagValidator) resolveView(bagID *externalapi.DomainHash, bag *externalapi.DomainBag,
	low uint64, views map[externalapi.DomainHash]ancestorView) error {

	if _, ok := views[*bagID]; ok {
		return nil
	}
	// Reserve the slot before recursing. Content-addressed ids make ancestry
	// cycles impossible, so this is purely a memoization guard.
	view := make(ancestorView)
	views[*bagID] = view

	for _, ancestorID := range bag.Ancestors {
		ancestor, err := v.bagStore.Bag(ancestorID)
		if err != nil {
			return ruleerrors.NewRuleError(ruleerrors.ErrMissingAncestor,
				"bag %s lists unknown ancestor %s", bagID, ancestorID)
		}
		if ancestor.Height >= bag.Height {
			return ruleerrors.NewRuleError(ruleerrors.ErrWrongBagHeight,
				"bag %s at height %d lists ancestor %s at height %d",
				bagID, bag.Height, ancestorID, ancestor.Height)
		}
		if ancestor.Height < low {
			continue
		}
		if err := v.resolveView(ancestorID, ancestor, low, views); err != nil {
			return err
		}
		if view[ancestor.Height] == nil {
			view[ancestor.Height] = make(heightSet)
		}
		view[ancestor.Height][*ancestorID] = struct{}{}
		for height, ids := range views[*ancestorID] {
			if view[height] == nil {
				view[height] = make(heightSet)
			}
			for id := range ids {
				view[height][id] = struct{}{}
			}
		}
	}
	return nil
}

// checkPathConsistency verifies that any two reached ancestors sharing a
// window height claim identical history at every deeper height both cover.
func (v *bagValidator) checkPathConsistency(merged ancestorView,
	views map[externalapi.DomainHash]ancestorView) error {

	for _, ids := range merged {
		if len(ids) < 2 {
			continue
		}
		peers := make([]externalapi.DomainHash, 0, len(ids))
		for id := range ids {
			peers = append(peers, id)
		}
		for i := 0; i < len(peers); i++ {
			for j := i + 1; j < len(peers); j++ {
				first, second := views[peers[i]], views[peers[j]]
				for height, firstSet := range first {
					secondSet, ok := second[height]
					if !ok {
						continue
					}
					if !setsEqual(firstSet, secondSet) {
						firstID, secondID := peers[i], peers[j]
						return ruleerrors.NewErrAncestorMismatch(
							"ancestor paths disagree about history",
							[]*externalapi.DomainHash{&firstID, &secondID})
					}
				}
			}
		}
	}
	return nil
}

func (v *bagValidator) CheckCompatible(firstID, secondID *externalapi.DomainHash,
	first, second *externalapi.DomainBag) error {

	conflicting := []*externalapi.DomainHash{firstID, secondID}

	if first.Height != second.Height {
		return ruleerrors.NewErrIncompatibleBags("bags target different heights", conflicting)
	}

	firstWindow, err := v.AncestorWindow(first)
	if err != nil {
		return err
	}
	secondWindow, err := v.AncestorWindow(second)
	if err != nil {
		return err
	}
	if !windowsEqual(firstWindow, secondWindow) {
		return ruleerrors.NewErrAncestorMismatch(
			"bags disagree about the ancestor window", conflicting)
	}

	// Distinct transactions consuming the same output can never coexist in a
	// block. A transaction shared by both bags (same canonical id) is merged,
	// not conflicting.
	spent := make(map[externalapi.DomainHash]*externalapi.DomainHash)
	for _, tx := range first.Transactions {
		for _, input := range tx.Inputs {
			spent[*input] = tx.ID
		}
	}
	for _, tx := range second.Transactions {
		for _, input := range tx.Inputs {
			if spender, ok := spent[*input]; ok && !spender.Equal(tx.ID) {
				return ruleerrors.NewErrIncompatibleBags(
					"bags double spend output "+input.String(), conflicting)
			}
		}
	}
	return nil
}

func sortedHashes(ids heightSet) []*externalapi.DomainHash {
	sorted := make([]*externalapi.DomainHash, 0, len(ids))
	for id := range ids {
		id := id
		sorted = append(sorted, &id)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Less(sorted[j])
	})
	return sorted
}

func setsEqual(first, second heightSet) bool {
	if len(first) != len(second) {
		return false
	}
	for id := range first {
		if _, ok := second[id]; !ok {
			return false
		}
	}
	return true
}

func windowsEqual(first, second model.AncestorWindow) bool {
	if len(first) != len(second) {
		return false
	}
	for height, firstIDs := range first {
		secondIDs, ok := second[height]
		if !ok || !externalapi.HashesEqual(firstIDs, secondIDs) {
			return false
		}
	}
	return true
}
