package merkle

import (
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
	"github.com/flamenet/flamed/domain/consensus/utils/transcript"
	"github.com/pkg/errors"
)

// Commitment labels. These are part of the wire-level commitment scheme and
// must match across implementations.
const (
	labelEmpty = "merkle.empty"
	labelLeaf  = "merkle.leaf"
	labelNode  = "merkle.node"
	labelLeft  = "L"
	labelRight = "R"
)

// Item is an element of a commitment tree. Implementations append their
// fields to the transcript in a fixed declared order.
type Item interface {
	AppendToTranscript(t *transcript.Transcript)
}

// Root builds the commitment root of an ordered item sequence under the
// given transcript domain. The tree is binary, order-sensitive, and its
// shape is a pure function of the item count: each node splits at the
// largest power of two strictly below its size, so the tree is not
// necessarily balanced.
func Root(domainLabel string, items []Item) *externalapi.DomainHash {
	return subtreeRoot(transcript.New(domainLabel), items)
}

func subtreeRoot(t *transcript.Transcript, items []Item) *externalapi.DomainHash {
	switch len(items) {
	case 0:
		return challengeHash(t, labelEmpty)
	case 1:
		items[0].AppendToTranscript(t)
		return challengeHash(t, labelLeaf)
	default:
		split := splitPoint(len(items))
		// Each subtree owns a fork of the transcript state; a single
		// instance must never be threaded through both children.
		left := subtreeRoot(t.Fork(), items[:split])
		right := subtreeRoot(t.Fork(), items[split:])
		t.AppendMessage(labelLeft, left.ByteSlice())
		t.AppendMessage(labelRight, right.ByteSlice())
		return challengeHash(t, labelNode)
	}
}

// splitPoint returns the largest power of two strictly smaller than n.
func splitPoint(n int) int {
	k := 1
	for k*2 < n {
		k *= 2
	}
	return k
}

func challengeHash(t *transcript.Transcript, label string) *externalapi.DomainHash {
	hash, err := externalapi.NewDomainHashFromByteSlice(t.ChallengeBytes(label, externalapi.DomainHashSize))
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. Challenge size equals the hash size"))
	}
	return hash
}
