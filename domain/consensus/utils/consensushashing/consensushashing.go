package consensushashing

import (
	"sort"

	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
	"github.com/flamenet/flamed/domain/consensus/utils/merkle"
	"github.com/flamenet/flamed/domain/consensus/utils/transcript"
	"github.com/flamenet/flamed/domain/dagconfig"
	"github.com/pkg/errors"
)

// Transcript domains. These are protocol constants; the reward domain and
// its labels are shared with anchor-side implementations.
const (
	bagDomain    = "Flame.Bag"
	blockDomain  = "Flame.Block"
	rewardDomain = "Flame.Reward"
	txRootDomain = "Flame.TxRoot"
	mintDomain   = "Flame.Mint"
)

// BagID returns the bag's content-addressed identifier. It is a pure
// function of the bag's fields: no randomness is ever folded in. The first
// two bytes carry the network prefix.
func BagID(bag *externalapi.DomainBag, params *dagconfig.Params) *externalapi.DomainHash {
	t := transcript.New(bagDomain)
	t.AppendUint64("height", bag.Height)

	// Ancestors form a set; sort them so listing order can't change the id.
	ancestors := externalapi.CloneHashes(bag.Ancestors)
	sort.Slice(ancestors, func(i, j int) bool {
		return ancestors[i].Less(ancestors[j])
	})
	t.AppendUint64("ancestor_count", uint64(len(ancestors)))
	for _, ancestor := range ancestors {
		t.AppendMessage("ancestor", ancestor.ByteSlice())
	}

	t.AppendUint64("timestamp_ms", uint64(bag.TimestampMS))
	t.AppendMessage("reward_address", bag.RewardAddress)
	t.AppendMessage("bid_tx", bag.BidTxID.ByteSlice())
	t.AppendUint64("bid_output", uint64(bag.BidOutputIndex))
	t.AppendUint64("bid_amount", bag.BidAmount)

	t.AppendUint64("tx_count", uint64(len(bag.Transactions)))
	for _, tx := range bag.Transactions {
		t.AppendMessage("tx", tx.ID.ByteSlice())
	}
	t.AppendMessage("ext", bag.Ext)

	return challengeID(t, "bag_id", params)
}

// BlockID returns the block's content-addressed identifier. Field order:
// height, prev, timestamp_ms, txroot, state_root, bag count, each bag id,
// ext.
func BlockID(block *externalapi.DomainBlock, params *dagconfig.Params) *externalapi.DomainHash {
	t := transcript.New(blockDomain)
	t.AppendUint64("height", block.Height)
	// The first block of a chain has no predecessor; it commits to the zero
	// hash in prev's place.
	prev := block.Prev
	if prev == nil {
		prev = &externalapi.DomainHash{}
	}
	t.AppendMessage("prev", prev.ByteSlice())
	t.AppendUint64("timestamp_ms", uint64(block.TimestampMS))
	t.AppendMessage("txroot", block.TxRoot.ByteSlice())
	t.AppendMessage("state_root", block.StateRoot.ByteSlice())
	t.AppendUint64("bag_count", uint64(len(block.Bags)))
	for _, bagID := range block.Bags {
		t.AppendMessage("bag", bagID.ByteSlice())
	}
	t.AppendMessage("ext", block.Ext)

	return challengeID(t, "block_id", params)
}

// RewardContractID derives the reward contract anchor for the bid at
// bidIndex inside the bag. The (bag id, index) pair keeps anchors unique
// even when several bids pay the same address.
func RewardContractID(bagID *externalapi.DomainHash, bidIndex uint64, params *dagconfig.Params) *externalapi.DomainHash {
	t := transcript.New(rewardDomain)
	t.AppendMessage("bag_id", bagID.ByteSlice())
	t.AppendUint64("index", bidIndex)

	return challengeID(t, "anchor", params)
}

// MintTransactionID derives the identifier of the synthetic transaction that
// commits a block's reward contracts into the state.
func MintTransactionID(blockHeight uint64, contractIDs []*externalapi.DomainHash, params *dagconfig.Params) *externalapi.DomainHash {
	t := transcript.New(mintDomain)
	t.AppendUint64("height", blockHeight)
	t.AppendUint64("contract_count", uint64(len(contractIDs)))
	for _, contractID := range contractIDs {
		t.AppendMessage("contract", contractID.ByteSlice())
	}

	return challengeID(t, "mint_id", params)
}

type txItem struct {
	tx *externalapi.DomainTransaction
}

func (item txItem) AppendToTranscript(t *transcript.Transcript) {
	t.AppendMessage("id", item.tx.ID.ByteSlice())
	t.AppendMessage("witness", item.tx.Witness)
}

// TransactionsRoot commits to a block's final ordered transaction sequence,
// witness data included.
func TransactionsRoot(txs []*externalapi.DomainTransaction) *externalapi.DomainHash {
	items := make([]merkle.Item, len(txs))
	for i, tx := range txs {
		items[i] = txItem{tx: tx}
	}
	return merkle.Root(txRootDomain, items)
}

// challengeID finalizes an identifier transcript and overwrites the first
// two bytes with the network prefix.
func challengeID(t *transcript.Transcript, label string, params *dagconfig.Params) *externalapi.DomainHash {
	idBytes := t.ChallengeBytes(label, externalapi.DomainHashSize)
	idBytes[0] = params.IDPrefix[0]
	idBytes[1] = params.IDPrefix[1]

	id, err := externalapi.NewDomainHashFromByteSlice(idBytes)
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. Challenge size equals the hash size"))
	}
	return id
}
