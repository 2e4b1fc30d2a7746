package consensus

import (
	"testing"

	"github.com/btcsuite/btcutil"
	"github.com/flamenet/flamed/domain/anchorindex"
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
	"github.com/flamenet/flamed/domain/consensus/ruleerrors"
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

func newTestConsensus(t *testing.T) (*Consensus, *utxostate.State) {
	state := utxostate.New()
	c, err := NewFactory().NewConsensus(&Config{
		Params:      &dagconfig.SimnetParams,
		State:       state,
		AnchorStore: anchorindex.NewMemoryStore(),
		NowMS:       func() int64 { return testNowMS },
	})
	if err != nil {
		t.Fatalf("NewConsensus: %+v", err)
	}
	return c, state
}

func fund(t *testing.T, state *utxostate.State, outputs ...*externalapi.DomainHash) {
	_, err := state.Apply([]*externalapi.DomainTransaction{{
		ID:      testHash(0xf0),
		Outputs: outputs,
	}})
	if err != nil {
		t.Fatalf("funding: %+v", err)
	}
}

func newBag(payload byte, amount uint64, input *externalapi.DomainHash) *externalapi.DomainBag {
	bag := &externalapi.DomainBag{
		Height:        1,
		TimestampMS:   50_000,
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
	return bag
}

// confirmBag feeds an anchor block at the bag's target height carrying its
// bid. Simnet's confirmation depth is 1, so the bid is final immediately.
func confirmBag(t *testing.T, c *Consensus, bagID *externalapi.DomainHash,
	bag *externalapi.DomainBag, anchorHeight uint64) {

	err := c.HandleEvent(&externalapi.AnchorBlockEvent{
		Header: &externalapi.AnchorHeader{Hash: testHash(byte(anchorHeight)), Height: anchorHeight},
		Bids: []*externalapi.DomainBid{{
			Amount:     bag.BidAmount,
			BagID:      bagID,
			AnchorTxID: bag.BidTxID,
			Locktime:   c.params.TargetAnchorHeight(bag.Height),
		}},
	})
	if err != nil {
		t.Fatalf("HandleEvent: %+v", err)
	}
}

func TestSubmitBagAndBuildBlock(t *testing.T) {
	c, state := newTestConsensus(t)

	o1 := testHash(0x11)
	fund(t, state, o1)

	bag := newBag(1, 1_000, o1)
	bagID, err := c.SubmitBag(bag)
	if err != nil {
		t.Fatalf("SubmitBag: %+v", err)
	}

	// Resubmission of the same content is rejected.
	if _, err := c.SubmitBag(bag); !errors.Is(err, ruleerrors.ErrDuplicateBag) {
		t.Fatalf("expected ErrDuplicateBag, got %v", err)
	}

	confirmBag(t, c, bagID, bag, 1)

	assembled, err := c.BuildBlock()
	if err != nil {
		t.Fatalf("BuildBlock: %+v", err)
	}
	if len(assembled.Block.Bags) != 1 || !assembled.Block.Bags[0].Equal(bagID) {
		t.Fatal("built block does not carry the submitted bag")
	}

	if tip := c.CurrentTip(); tip == nil || tip.Height != 1 {
		t.Fatal("tip snapshot not refreshed after building a block")
	}
	if !c.CurrentTipID().Equal(assembled.BlockID) {
		t.Fatal("tip id snapshot does not match the built block")
	}

	// The included bag is no longer pending.
	if _, err := c.BuildBlock(); !errors.Is(err, ruleerrors.ErrNoBags) {
		t.Fatalf("expected ErrNoBags, got %v", err)
	}
}

func TestSubmitBidValidation(t *testing.T) {
	c, state := newTestConsensus(t)

	o1 := testHash(0x11)
	fund(t, state, o1)

	bag := newBag(1, 1_000, o1)
	bagID, err := c.SubmitBag(bag)
	if err != nil {
		t.Fatalf("SubmitBag: %+v", err)
	}

	err = c.SubmitBid(&externalapi.DomainBid{
		Amount: 1_000, BagID: testHash(0xef), AnchorTxID: testHash(1), Locktime: 1,
	})
	if !errors.Is(err, ruleerrors.ErrUnknownBag) {
		t.Fatalf("expected ErrUnknownBag, got %v", err)
	}

	err = c.SubmitBid(&externalapi.DomainBid{
		Amount: 1_000, BagID: bagID, AnchorTxID: testHash(1),
		Locktime: c.params.TargetAnchorHeight(bag.Height) + 1,
	})
	if !errors.Is(err, ruleerrors.ErrBidLocktimeMismatch) {
		t.Fatalf("expected ErrBidLocktimeMismatch, got %v", err)
	}

	err = c.SubmitBid(&externalapi.DomainBid{
		Amount: 1_000, BagID: bagID, AnchorTxID: testHash(1),
		Locktime: c.params.TargetAnchorHeight(bag.Height),
	})
	if err != nil {
		t.Fatalf("SubmitBid: %+v", err)
	}
}

// TestBuildBlockSelectsCompatibleBags submits three bags where the middle
// one double spends against the heaviest: the builder keeps the heavy bag,
// drops the conflicting one, and merges the third.
func TestBuildBlockSelectsCompatibleBags(t *testing.T) {
	c, state := newTestConsensus(t)

	o1, o2 := testHash(0x11), testHash(0x12)
	fund(t, state, o1, o2)

	heavy := newBag(1, 4_000, o1)
	conflicting := newBag(2, 2_000, o1)
	light := newBag(3, 1_000, o2)

	heavyID, err := c.SubmitBag(heavy)
	if err != nil {
		t.Fatalf("SubmitBag: %+v", err)
	}
	conflictingID, err := c.SubmitBag(conflicting)
	if err != nil {
		t.Fatalf("SubmitBag: %+v", err)
	}
	lightID, err := c.SubmitBag(light)
	if err != nil {
		t.Fatalf("SubmitBag: %+v", err)
	}

	// One anchor block confirms all three bids on time.
	err = c.HandleEvent(&externalapi.AnchorBlockEvent{
		Header: &externalapi.AnchorHeader{Hash: testHash(0xaa), Height: 1},
		Bids: []*externalapi.DomainBid{
			{Amount: heavy.BidAmount, BagID: heavyID, AnchorTxID: heavy.BidTxID},
			{Amount: conflicting.BidAmount, BagID: conflictingID, AnchorTxID: conflicting.BidTxID},
			{Amount: light.BidAmount, BagID: lightID, AnchorTxID: light.BidTxID},
		},
	})
	if err != nil {
		t.Fatalf("HandleEvent: %+v", err)
	}

	assembled, err := c.BuildBlock()
	if err != nil {
		t.Fatalf("BuildBlock: %+v", err)
	}

	if len(assembled.Block.Bags) != 2 {
		t.Fatalf("expected 2 merged bags, got %d", len(assembled.Block.Bags))
	}
	if !assembled.Block.Bags[0].Equal(heavyID) || !assembled.Block.Bags[1].Equal(lightID) {
		t.Error("merged bags are not the heavy and light ones in canonical order")
	}
}

func TestReadQueriesServeCommittedSnapshot(t *testing.T) {
	c, state := newTestConsensus(t)

	o1 := testHash(0x11)
	fund(t, state, o1)

	if c.CurrentTip() != nil {
		t.Fatal("expected nil tip before any block")
	}
	if len(c.PriceFeed()) != 0 {
		t.Fatal("expected an empty price feed before any block")
	}

	bag := newBag(1, 1_000, o1)
	bagID, err := c.SubmitBag(bag)
	if err != nil {
		t.Fatalf("SubmitBag: %+v", err)
	}
	confirmBag(t, c, bagID, bag, 1)

	if _, err := c.BuildBlock(); err != nil {
		t.Fatalf("BuildBlock: %+v", err)
	}

	feed := c.PriceFeed()
	if len(feed) != 1 || feed[0] != btcutil.Amount(1_000) {
		t.Fatalf("expected price feed [1000], got %v", feed)
	}

	// One tx with fee 10 over mass 100: 100 satoshi per kilobyte.
	if rate := c.EstimateFee(); rate != btcutil.Amount(100) {
		t.Fatalf("expected fee rate 100, got %d", rate)
	}

	// The reward matures a full maturation period after the block.
	if rewards := c.SpendableRewards(1 + c.params.MaturationPeriod - 1); len(rewards) != 0 {
		t.Fatal("reward spendable before maturation")
	}
	rewards := c.SpendableRewards(1 + c.params.MaturationPeriod)
	if len(rewards) != 1 {
		t.Fatalf("expected 1 matured reward, got %d", len(rewards))
	}
	if rewards[0].Amount == 0 {
		t.Fatal("matured reward has no value")
	}
}

func TestHandleEventRejectsUnknownBidBags(t *testing.T) {
	c, _ := newTestConsensus(t)

	// Bids for unregistered bags are ignored, not fatal.
	err := c.HandleEvent(&externalapi.AnchorBlockEvent{
		Header: &externalapi.AnchorHeader{Hash: testHash(1), Height: 1},
		Bids: []*externalapi.DomainBid{
			{Amount: 5, BagID: testHash(0xee), AnchorTxID: testHash(2)},
		},
	})
	if err != nil {
		t.Fatalf("HandleEvent: %+v", err)
	}
}
