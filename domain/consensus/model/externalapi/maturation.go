package externalapi

// MaturationEntry tracks one bid's reward until it becomes spendable. One
// entry is created per bid per block at assembly time. The engine never
// deletes matured entries; it only tracks the spendability threshold.
type MaturationEntry struct {
	// ContractID is the reward contract identifier derived for this bid.
	ContractID *DomainHash

	// Address is the reward address of the bag the bid committed to.
	Address []byte

	// Amount is the bid's total award: its inflation share plus its fee
	// shares.
	Amount uint64

	// SpendableAtHeight is the sidechain height at which the award becomes
	// externally spendable (block height + maturation period).
	SpendableAtHeight uint64
}

// Clone returns a clone of MaturationEntry
func (entry *MaturationEntry) Clone() *MaturationEntry {
	addressClone := make([]byte, len(entry.Address))
	copy(addressClone, entry.Address)

	return &MaturationEntry{
		ContractID:        entry.ContractID,
		Address:           addressClone,
		Amount:            entry.Amount,
		SpendableAtHeight: entry.SpendableAtHeight,
	}
}
