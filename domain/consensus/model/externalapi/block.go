package externalapi

// DomainBlock is a deterministic merge of one or more compatible bags. A
// block is immutable once finalized into a chain.
type DomainBlock struct {
	// Height is the sidechain height of the block.
	Height uint64

	// Prev is the id of the prior canonical block.
	Prev *DomainHash

	// TimestampMS is the median of the merged bags' timestamps (lower
	// median for an even count).
	TimestampMS int64

	// TxRoot commits to the block's final ordered, de-duplicated
	// transaction sequence, witness data included.
	TxRoot *DomainHash

	// StateRoot is the state accumulator's commitment root after applying
	// the block.
	StateRoot *DomainHash

	// Bags lists the merged bag ids, ordered by descending bid amount and
	// then by ascending anchor transaction id.
	Bags []*DomainHash

	// Ext is the extension blob shared by all merged bags.
	Ext []byte
}

// Clone returns a clone of DomainBlock
func (block *DomainBlock) Clone() *DomainBlock {
	extClone := make([]byte, len(block.Ext))
	copy(extClone, block.Ext)

	return &DomainBlock{
		Height:      block.Height,
		Prev:        block.Prev,
		TimestampMS: block.TimestampMS,
		TxRoot:      block.TxRoot,
		StateRoot:   block.StateRoot,
		Bags:        CloneHashes(block.Bags),
		Ext:         extClone,
	}
}
