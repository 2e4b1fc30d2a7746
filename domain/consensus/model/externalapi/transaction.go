package externalapi

// DomainTransaction is an opaque sidechain transaction. The consensus core
// never inspects script semantics; a transaction only exposes its canonical
// identifier (witness excluded), the output identifiers it consumes and
// creates, its declared fee, and its validity window.
type DomainTransaction struct {
	// ID is the canonical transaction identifier, which excludes witness
	// data. It is unique within a block.
	ID *DomainHash

	// Inputs are the identifiers of the outputs this transaction consumes.
	Inputs []*DomainHash

	// Outputs are the identifiers of the outputs this transaction creates.
	Outputs []*DomainHash

	// Fee is the transaction fee declared by the transaction, distributed
	// to block producers proportionally to their burn.
	Fee uint64

	// MinTimeMS and MaxTimeMS bound the block timestamps under which this
	// transaction is valid. A MaxTimeMS of zero means no upper bound.
	MinTimeMS int64
	MaxTimeMS int64

	// Witness carries the transaction's witness data. It does not
	// contribute to ID but does contribute to a block's txroot.
	Witness []byte

	// Mass is the transaction's serialized size in bytes, used for block
	// size accounting.
	Mass uint64
}

// Clone returns a clone of DomainTransaction
func (tx *DomainTransaction) Clone() *DomainTransaction {
	witnessClone := make([]byte, len(tx.Witness))
	copy(witnessClone, tx.Witness)

	return &DomainTransaction{
		ID:        tx.ID,
		Inputs:    CloneHashes(tx.Inputs),
		Outputs:   CloneHashes(tx.Outputs),
		Fee:       tx.Fee,
		MinTimeMS: tx.MinTimeMS,
		MaxTimeMS: tx.MaxTimeMS,
		Witness:   witnessClone,
		Mass:      tx.Mass,
	}
}
