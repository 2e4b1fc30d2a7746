package externalapi

// StateAccumulator is the external membership accumulator the consensus core
// mutates through block assembly and reorgs. Implementations own transaction
// execution semantics; the core only drives membership changes and reads the
// commitment root.
//
// Apply is atomic: either the whole batch is applied and the new root is
// returned, or no mutation takes place.
type StateAccumulator interface {
	// Contains returns whether the given output id is a live member.
	Contains(id *DomainHash) bool

	// Apply applies an ordered transaction batch: for each transaction, all
	// of its inputs are removed (a missing input fails the whole batch) and
	// all of its outputs are added. Returns the new commitment root.
	Apply(txs []*DomainTransaction) (*DomainHash, error)

	// Root returns the current commitment root.
	Root() *DomainHash

	// Snapshot records the current state under the given height.
	Snapshot(height uint64)

	// RestoreSnapshot restores the state recorded under the given height
	// and discards snapshots above it.
	RestoreSnapshot(height uint64) error
}
