package model

import (
	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
)

// BagStore is the arena of published bags, keyed by content-addressed id.
// Bags are immutable once added.
type BagStore interface {
	// Add inserts a bag under its id. Adding the same id twice is an error.
	Add(bagID *externalapi.DomainHash, bag *externalapi.DomainBag) error

	// Bag returns the bag stored under the given id.
	Bag(bagID *externalapi.DomainHash) (*externalapi.DomainBag, error)

	// Has returns whether the given id is in the arena.
	Has(bagID *externalapi.DomainHash) bool
}

// BlockStore is the arena of assembled blocks, keyed by content-addressed id.
type BlockStore interface {
	// Add inserts a block under its id.
	Add(blockID *externalapi.DomainHash, block *externalapi.DomainBlock) error

	// Block returns the block stored under the given id.
	Block(blockID *externalapi.DomainHash) (*externalapi.DomainBlock, error)

	// Has returns whether the given id is in the arena.
	Has(blockID *externalapi.DomainHash) bool
}

// MaturationStore tracks staged reward maturation entries per block. Entries
// become externally spendable at their threshold height; this engine never
// deletes matured entries, it only removes entries of rolled-back blocks.
type MaturationStore interface {
	// AddBlockEntries records the maturation entries committed by a block.
	AddBlockEntries(blockID *externalapi.DomainHash, entries []*externalapi.MaturationEntry)

	// RemoveBlockEntries removes the entries staged by a rolled-back block.
	RemoveBlockEntries(blockID *externalapi.DomainHash)

	// SpendableAt returns all entries whose threshold height is at or below
	// the given height.
	SpendableAt(height uint64) []*externalapi.MaturationEntry

	// BlockEntries returns the entries recorded for the given block.
	BlockEntries(blockID *externalapi.DomainHash) []*externalapi.MaturationEntry
}
