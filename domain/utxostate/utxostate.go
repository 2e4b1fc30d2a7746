package utxostate

import (
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
	"github.com/flamenet/flamed/domain/consensus/ruleerrors"
	"github.com/kaspanet/go-muhash"
	"github.com/pkg/errors"
)

// State is the reference implementation of the external state accumulator:
// a UTXO-style membership set with a multiplicative-hash commitment root.
// Mutation happens only through Apply, which is atomic, and through
// snapshot restoration.
//
// State is not safe for concurrent use; the consensus coordinator serializes
// all mutations behind its chain lock.
type State struct {
	members   map[externalapi.DomainHash]struct{}
	multiset  *muhash.MuHash
	snapshots map[uint64]*snapshot
}

type snapshot struct {
	members  map[externalapi.DomainHash]struct{}
	multiset *muhash.MuHash
}

// New returns an empty state accumulator.
func New() *State {
	return &State{
		members:   make(map[externalapi.DomainHash]struct{}),
		multiset:  muhash.NewMuHash(),
		snapshots: make(map[uint64]*snapshot),
	}
}

// Contains returns whether the given output id is a live member.
func (s *State) Contains(id *externalapi.DomainHash) bool {
	_, ok := s.members[*id]
	return ok
}

// Apply applies an ordered transaction batch atomically: every input of
// every transaction is removed and every output added, in order. The first
// missing input fails the whole batch and leaves the state untouched.
func (s *State) Apply(txs []*externalapi.DomainTransaction) (*externalapi.DomainHash, error) {
	// Work on copies so a mid-batch failure can't leave partial mutations.
	workingMembers := make(map[externalapi.DomainHash]struct{}, len(s.members))
	for member := range s.members {
		workingMembers[member] = struct{}{}
	}
	workingMultiset := s.multiset.Clone()

	for i, tx := range txs {
		for _, input := range tx.Inputs {
			if _, ok := workingMembers[*input]; !ok {
				return nil, ruleerrors.NewErrDoubleSpend(i, tx.ID,
					"input "+input.String()+" is not a live member")
			}
			delete(workingMembers, *input)
			workingMultiset.Remove(input.ByteSlice())
		}
		for _, output := range tx.Outputs {
			if _, ok := workingMembers[*output]; ok {
				return nil, ruleerrors.NewErrInvalidTransaction(i, tx.ID,
					"output "+output.String()+" already exists")
			}
			workingMembers[*output] = struct{}{}
			workingMultiset.Add(output.ByteSlice())
		}
	}

	s.members = workingMembers
	s.multiset = workingMultiset
	return s.Root(), nil
}

// Root returns the current commitment root.
func (s *State) Root() *externalapi.DomainHash {
	finalized := s.multiset.Finalize()
	return externalapi.NewDomainHashFromByteArray(finalized.AsArray())
}

// Snapshot records the current state under the given height. A later
// snapshot under the same height overwrites the earlier one.
func (s *State) Snapshot(height uint64) {
	members := make(map[externalapi.DomainHash]struct{}, len(s.members))
	for member := range s.members {
		members[member] = struct{}{}
	}
	s.snapshots[height] = &snapshot{
		members:  members,
		multiset: s.multiset.Clone(),
	}
}

// RestoreSnapshot restores the state recorded under the given height and
// discards all snapshots above it.
func (s *State) RestoreSnapshot(height uint64) error {
	snap, ok := s.snapshots[height]
	if !ok {
		return errors.Errorf("no snapshot recorded for height %d", height)
	}

	members := make(map[externalapi.DomainHash]struct{}, len(snap.members))
	for member := range snap.members {
		members[member] = struct{}{}
	}
	s.members = members
	s.multiset = snap.multiset.Clone()

	for snapHeight := range s.snapshots {
		if snapHeight > height {
			delete(s.snapshots, snapHeight)
		}
	}
	return nil
}

var _ externalapi.StateAccumulator = (*State)(nil)
