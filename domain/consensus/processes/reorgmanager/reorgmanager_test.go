package reorgmanager

import (
	"testing"

	"github.com/flamenet/flamed/domain/consensus/datastructures/bagstore"
	"github.com/flamenet/flamed/domain/consensus/datastructures/blockstore"
	"github.com/flamenet/flamed/domain/consensus/datastructures/maturationstore"
	"github.com/flamenet/flamed/domain/consensus/model"
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
	"github.com/flamenet/flamed/domain/consensus/processes/bagvalidator"
	"github.com/flamenet/flamed/domain/consensus/processes/blockassembler"
	"github.com/flamenet/flamed/domain/consensus/processes/rewardmanager"
	"github.com/flamenet/flamed/domain/consensus/processes/weightmanager"
	"github.com/flamenet/flamed/domain/consensus/ruleerrors"
	"github.com/flamenet/flamed/domain/consensus/utils/consensushashing"
	"github.com/flamenet/flamed/domain/dagconfig"
	"github.com/flamenet/flamed/domain/utxostate"
	"github.com/pkg/errors"
)

const testNowMS = int64(100_000)

func testHash(b byte) *externalapi.DomainHash {
	var arr [externalapi.DomainHashSize]byte
	arr[0] = b
	return externalapi.NewDomainHashFromByteArray(&arr)
}

type fakeAnchorIndex struct {
	confirmations map[externalapi.DomainHash]uint64
}

func (f *fakeAnchorIndex) ConfirmationHeight(bagID *externalapi.DomainHash) (uint64, bool) {
	height, ok := f.confirmations[*bagID]
	return height, ok
}

func (f *fakeAnchorIndex) TipHeader() *externalapi.AnchorHeader {
	return &externalapi.AnchorHeader{Hash: testHash(0xff), Height: 1_000}
}

type testHarness struct {
	t               *testing.T
	params          *dagconfig.Params
	anchorIndex     *fakeAnchorIndex
	bagStore        model.BagStore
	blockStore      model.BlockStore
	maturationStore model.MaturationStore
	state           *utxostate.State
	assembler       model.BlockAssembler
	weights         model.WeightManager
	manager         model.ReorgManager
}

func newHarness(t *testing.T) *testHarness {
	params := &dagconfig.SimnetParams
	anchorIndex := &fakeAnchorIndex{confirmations: make(map[externalapi.DomainHash]uint64)}
	bagStore := bagstore.New()
	blockStore := blockstore.New()
	maturationStore := maturationstore.New()
	state := utxostate.New()
	validator := bagvalidator.New(params, bagStore)
	rewards := rewardmanager.New(params)
	weights := weightmanager.New(params, anchorIndex, bagStore, blockStore)
	assembler := blockassembler.New(params, validator, rewards, weights, bagStore, state, nil)
	manager := New(params, assembler, weights, bagStore, blockStore, maturationStore,
		state, func() int64 { return testNowMS })
	return &testHarness{
		t:               t,
		params:          params,
		anchorIndex:     anchorIndex,
		bagStore:        bagStore,
		blockStore:      blockStore,
		maturationStore: maturationStore,
		state:           state,
		assembler:       assembler,
		weights:         weights,
		manager:         manager,
	}
}

// fund seeds both this harness's state and the id-space shared with scratch
// harnesses.
func (h *testHarness) fund(outputs ...*externalapi.DomainHash) {
	_, err := h.state.Apply([]*externalapi.DomainTransaction{{
		ID:      testHash(0xf0),
		Outputs: outputs,
	}})
	if err != nil {
		h.t.Fatalf("funding: %+v", err)
	}
}

// newBag creates and stores a confirmed on-time bag spending the given input.
func (h *testHarness) newBag(height uint64, payload byte, amount uint64, delay uint64,
	input *externalapi.DomainHash) (*externalapi.DomainHash, *externalapi.DomainBag) {

	bag := &externalapi.DomainBag{
		Height:        height,
		TimestampMS:   50_000 + int64(height),
		RewardAddress: []byte{payload},
		BidTxID:       testHash(payload),
		BidAmount:     amount,
	}
	if input != nil {
		bag.Transactions = []*externalapi.DomainTransaction{{
			ID:      testHash(payload ^ 0x40),
			Inputs:  []*externalapi.DomainHash{input},
			Outputs: []*externalapi.DomainHash{testHash(payload ^ 0x20)},
			Fee:     10,
			Mass:    100,
		}}
	}
	bagID := consensushashing.BagID(bag, h.params)
	if err := h.bagStore.Add(bagID, bag); err != nil {
		h.t.Fatalf("Add: %+v", err)
	}
	h.anchorIndex.confirmations[*bagID] = h.params.TargetAnchorHeight(height) + delay
	return bagID, bag
}

// extendTip assembles the given bags on the current tip and commits the
// result, returning the new tip's id.
func (h *testHarness) extendTip(bags ...*externalapi.DomainBag) *externalapi.DomainHash {
	assembled, err := h.assembler.AssembleBlock(h.manager.TipID(), h.manager.Tip(), bags, testNowMS)
	if err != nil {
		h.t.Fatalf("AssembleBlock: %+v", err)
	}
	if err := h.manager.CommitTipBlock(assembled); err != nil {
		h.t.Fatalf("CommitTipBlock: %+v", err)
	}
	return assembled.BlockID
}

// buildDetachedBlock assembles bags into a first block inside a scratch
// harness sharing this harness's funding, without touching this harness's
// state. Assembly is deterministic, so ids agree across harnesses.
func (h *testHarness) buildDetachedBlock(funding []*externalapi.DomainHash,
	bags ...*externalapi.DomainBag) (*externalapi.DomainHash, *externalapi.DomainBlock) {

	scratch := newHarness(h.t)
	scratch.fund(funding...)
	for _, bag := range bags {
		bagID := consensushashing.BagID(bag, h.params)
		if err := scratch.bagStore.Add(bagID, bag); err != nil {
			h.t.Fatalf("Add: %+v", err)
		}
	}

	assembled, err := scratch.assembler.AssembleBlock(nil, nil, bags, testNowMS)
	if err != nil {
		h.t.Fatalf("detached AssembleBlock: %+v", err)
	}
	return assembled.BlockID, assembled.Block
}

func TestCommitTipBlockExtendsChain(t *testing.T) {
	h := newHarness(t)

	o1, o2 := testHash(0x11), testHash(0x12)
	h.fund(o1, o2)

	_, bag1 := h.newBag(1, 1, 1_000, 0, o1)
	firstID := h.extendTip(bag1)

	if !h.manager.TipID().Equal(firstID) {
		t.Fatal("tip did not advance to the committed block")
	}
	if h.manager.Status() != model.StatusFollowing {
		t.Fatalf("expected following status, got %s", h.manager.Status())
	}

	_, bag2 := h.newBag(2, 2, 1_000, 0, o2)
	secondID := h.extendTip(bag2)
	if !h.manager.TipID().Equal(secondID) {
		t.Fatal("tip did not advance to the second block")
	}
	if h.manager.Tip().Height != 2 {
		t.Fatalf("expected tip height 2, got %d", h.manager.Tip().Height)
	}
}

func TestCommitTipBlockNotOnTip(t *testing.T) {
	h := newHarness(t)

	assembled := &model.AssembledBlock{
		Block:   &externalapi.DomainBlock{Height: 1, Prev: testHash(0xab)},
		BlockID: testHash(0xcd),
	}
	err := h.manager.CommitTipBlock(assembled)
	if !errors.Is(err, ruleerrors.ErrNotContiguous) {
		t.Fatalf("expected ErrNotContiguous, got %v", err)
	}
}

// TestConsiderChainSwitchesToHeavierChain builds a canonical one-block chain
// and a heavier competing block, and checks the full rollback-and-replay
// switch, including maturation bookkeeping.
func TestConsiderChainSwitchesToHeavierChain(t *testing.T) {
	h := newHarness(t)

	o1, o2 := testHash(0x11), testHash(0x12)
	funding := []*externalapi.DomainHash{o1, o2}
	h.fund(funding...)

	_, weakBag := h.newBag(1, 1, 1_000, 0, o1)
	weakID := h.extendTip(weakBag)

	_, strongBag := h.newBag(1, 2, 4_000, 0, o2)
	strongID, strongBlock := h.buildDetachedBlock(funding, strongBag)

	if err := h.manager.AddCandidateBlock(strongID, strongBlock); err != nil {
		t.Fatalf("AddCandidateBlock: %+v", err)
	}
	if err := h.manager.ConsiderChain(strongID); err != nil {
		t.Fatalf("ConsiderChain: %+v", err)
	}

	if !h.manager.TipID().Equal(strongID) {
		t.Fatal("tip did not switch to the heavier chain")
	}
	if h.manager.Status() != model.StatusFollowing {
		t.Fatalf("expected following status after switch, got %s", h.manager.Status())
	}

	// The weak block's rewards are gone, the strong block's are staged.
	if entries := h.maturationStore.BlockEntries(weakID); len(entries) != 0 {
		t.Errorf("rolled-back block still has %d maturation entries", len(entries))
	}
	if entries := h.maturationStore.BlockEntries(strongID); len(entries) != 1 {
		t.Errorf("expected 1 maturation entry for the new block, got %d", len(entries))
	}

	// State reflects the strong chain only: o1 is unspent again, o2 is gone.
	if !h.state.Contains(o1) {
		t.Error("rolled-back spend was not reverted")
	}
	if h.state.Contains(o2) {
		t.Error("replayed spend was not applied")
	}
}

func TestConsiderChainRejectsEqualAndLowerWeight(t *testing.T) {
	h := newHarness(t)

	o1, o2 := testHash(0x11), testHash(0x12)
	funding := []*externalapi.DomainHash{o1, o2}
	h.fund(funding...)

	_, incumbentBag := h.newBag(1, 1, 1_000, 0, o1)
	incumbentID := h.extendTip(incumbentBag)

	// Same burn, same weight: the incumbent tip wins.
	_, equalBag := h.newBag(1, 2, 1_000, 0, o2)
	equalID, equalBlock := h.buildDetachedBlock(funding, equalBag)
	if err := h.manager.AddCandidateBlock(equalID, equalBlock); err != nil {
		t.Fatalf("AddCandidateBlock: %+v", err)
	}
	err := h.manager.ConsiderChain(equalID)
	if !errors.Is(err, ruleerrors.ErrLowerWeight) {
		t.Fatalf("expected ErrLowerWeight, got %v", err)
	}
	if !h.manager.TipID().Equal(incumbentID) {
		t.Fatal("equal-weight candidate displaced the incumbent tip")
	}
}

// TestConsiderChainBansInvalidChain offers a heavier chain whose second block
// double spends, and checks the bank-and-retry restore plus the ban.
func TestConsiderChainBansInvalidChain(t *testing.T) {
	h := newHarness(t)

	o1, o2 := testHash(0x11), testHash(0x12)
	funding := []*externalapi.DomainHash{o1, o2}
	h.fund(funding...)

	_, goodBag := h.newBag(1, 1, 1_000, 0, o1)
	goodID := h.extendTip(goodBag)

	// First candidate block is fine; the second spends o2 twice.
	_, strongBag := h.newBag(1, 2, 1<<20, 0, o2)
	strongID, strongBlock := h.buildDetachedBlock(funding, strongBag)

	doubleSpendID, _ := h.newBag(2, 3, 1<<20, 0, o2)
	badBlock := &externalapi.DomainBlock{
		Height:      2,
		Prev:        strongID,
		TimestampMS: 50_002,
		TxRoot:      testHash(0xee),
		StateRoot:   testHash(0xdd),
		Bags:        []*externalapi.DomainHash{doubleSpendID},
	}
	badID := consensushashing.BlockID(badBlock, h.params)

	if err := h.manager.AddCandidateBlock(strongID, strongBlock); err != nil {
		t.Fatalf("AddCandidateBlock: %+v", err)
	}
	if err := h.manager.AddCandidateBlock(badID, badBlock); err != nil {
		t.Fatalf("AddCandidateBlock: %+v", err)
	}

	err := h.manager.ConsiderChain(badID)
	if !errors.Is(err, ruleerrors.ErrInvalidAfterReorg) {
		t.Fatalf("expected ErrInvalidAfterReorg, got %v", err)
	}

	// The known-valid chain is back, the candidate is banned.
	if !h.manager.TipID().Equal(goodID) {
		t.Fatal("previous chain was not restored after a failed replay")
	}
	if !h.manager.IsBanned(badID) {
		t.Fatal("invalid chain was not banned")
	}
	if entries := h.maturationStore.BlockEntries(goodID); len(entries) != 1 {
		t.Errorf("restored block lost its maturation entries")
	}
	if !h.state.Contains(o2) {
		t.Error("partial replay leaked into the state accumulator")
	}

	// Banned chains are never retried.
	err = h.manager.ConsiderChain(badID)
	if !errors.Is(err, ruleerrors.ErrChainBanned) {
		t.Fatalf("expected ErrChainBanned, got %v", err)
	}
}

// TestHandleAnchorReorgSwitchesTip delays the canonical chain's bid via an
// anchor reorg until a competing chain outweighs it.
func TestHandleAnchorReorgSwitchesTip(t *testing.T) {
	h := newHarness(t)

	o1, o2 := testHash(0x11), testHash(0x12)
	funding := []*externalapi.DomainHash{o1, o2}
	h.fund(funding...)

	incumbentBagID, incumbentBag := h.newBag(1, 1, 1_024, 0, o1)
	incumbentID := h.extendTip(incumbentBag)

	_, competingBag := h.newBag(1, 2, 512, 0, o2)
	competingID, competingBlock := h.buildDetachedBlock(funding, competingBag)
	if err := h.manager.AddCandidateBlock(competingID, competingBlock); err != nil {
		t.Fatalf("AddCandidateBlock: %+v", err)
	}

	// At full weight the incumbent (log2 1024) beats the competitor
	// (log2 512): nothing changes.
	if err := h.manager.HandleAnchorReorg(); err != nil {
		t.Fatalf("HandleAnchorReorg: %+v", err)
	}
	if !h.manager.TipID().Equal(incumbentID) {
		t.Fatal("anchor reorg with unchanged weights moved the tip")
	}

	// The reorg delays the incumbent's bid by two anchor blocks:
	// 1024>>2 = 256, now lighter than 512.
	h.anchorIndex.confirmations[*incumbentBagID] = h.params.TargetAnchorHeight(1) + 2
	if err := h.manager.HandleAnchorReorg(); err != nil {
		t.Fatalf("HandleAnchorReorg: %+v", err)
	}
	if !h.manager.TipID().Equal(competingID) {
		t.Fatal("tip did not switch after the anchor reorg changed weights")
	}
}
