package model

import (
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
)

// AnchorIndex is the consensus-side view of the anchor-chain bid tracker.
// It answers, for a bag, where (and whether) its bid confirmed on the
// currently known anchor chain. Answers change when the anchor chain
// reorganizes, which is why chain weight is never cached across anchor tip
// changes.
type AnchorIndex interface {
	// ConfirmationHeight returns the anchor height at which the bag's bid
	// confirmed. ok is false when the bid is unconfirmed, evicted by an
	// anchor reorg, or still below the confirmation depth.
	ConfirmationHeight(bagID *externalapi.DomainHash) (height uint64, ok bool)

	// TipHeader returns the current anchor chain tip.
	TipHeader() *externalapi.AnchorHeader
}
