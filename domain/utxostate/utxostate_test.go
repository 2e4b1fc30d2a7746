package utxostate

import (
	"testing"

	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
	"github.com/flamenet/flamed/domain/consensus/ruleerrors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func hashFromByte(b byte) *externalapi.DomainHash {
	var arr [externalapi.DomainHashSize]byte
	arr[0] = b
	return externalapi.NewDomainHashFromByteArray(&arr)
}

func tx(id byte, inputs, outputs []byte) *externalapi.DomainTransaction {
	t := &externalapi.DomainTransaction{ID: hashFromByte(id)}
	for _, in := range inputs {
		t.Inputs = append(t.Inputs, hashFromByte(in))
	}
	for _, out := range outputs {
		t.Outputs = append(t.Outputs, hashFromByte(out))
	}
	return t
}

func TestApplyAddsAndRemovesMembers(t *testing.T) {
	state := New()

	_, err := state.Apply([]*externalapi.DomainTransaction{tx(1, nil, []byte{10, 11})})
	require.NoError(t, err)
	require.True(t, state.Contains(hashFromByte(10)))
	require.True(t, state.Contains(hashFromByte(11)))

	_, err = state.Apply([]*externalapi.DomainTransaction{tx(2, []byte{10}, []byte{12})})
	require.NoError(t, err)
	require.False(t, state.Contains(hashFromByte(10)))
	require.True(t, state.Contains(hashFromByte(12)))
}

func TestApplyIsAtomic(t *testing.T) {
	state := New()
	_, err := state.Apply([]*externalapi.DomainTransaction{tx(1, nil, []byte{10})})
	require.NoError(t, err)
	rootBefore := state.Root()

	// Second transaction spends a missing input; the first transaction in
	// the same batch must not leave any trace.
	_, err = state.Apply([]*externalapi.DomainTransaction{
		tx(2, []byte{10}, []byte{11}),
		tx(3, []byte{99}, []byte{12}),
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, ruleerrors.ErrDoubleSpend))

	require.True(t, state.Contains(hashFromByte(10)))
	require.False(t, state.Contains(hashFromByte(11)))
	require.Equal(t, rootBefore, state.Root())
}

func TestDoubleSpendWithinBatch(t *testing.T) {
	state := New()
	_, err := state.Apply([]*externalapi.DomainTransaction{tx(1, nil, []byte{10})})
	require.NoError(t, err)

	_, err = state.Apply([]*externalapi.DomainTransaction{
		tx(2, []byte{10}, []byte{11}),
		tx(3, []byte{10}, []byte{12}),
	})
	require.True(t, errors.Is(err, ruleerrors.ErrDoubleSpend))
}

func TestRootTracksMembership(t *testing.T) {
	state := New()
	emptyRoot := state.Root()

	_, err := state.Apply([]*externalapi.DomainTransaction{tx(1, nil, []byte{10})})
	require.NoError(t, err)
	require.NotEqual(t, emptyRoot, state.Root())

	// Removing the only member returns the accumulator to its empty root.
	_, err = state.Apply([]*externalapi.DomainTransaction{tx(2, []byte{10}, nil)})
	require.NoError(t, err)
	require.Equal(t, emptyRoot, state.Root())
}

func TestRootIsRepeatable(t *testing.T) {
	state := New()
	_, err := state.Apply([]*externalapi.DomainTransaction{tx(1, nil, []byte{10})})
	require.NoError(t, err)

	// Finalizing the accumulator must not consume it.
	require.Equal(t, state.Root(), state.Root())
}

func TestSnapshotRestore(t *testing.T) {
	state := New()
	_, err := state.Apply([]*externalapi.DomainTransaction{tx(1, nil, []byte{10})})
	require.NoError(t, err)
	state.Snapshot(1)
	rootAtOne := state.Root()

	_, err = state.Apply([]*externalapi.DomainTransaction{tx(2, []byte{10}, []byte{11})})
	require.NoError(t, err)
	state.Snapshot(2)

	require.NoError(t, state.RestoreSnapshot(1))
	require.Equal(t, rootAtOne, state.Root())
	require.True(t, state.Contains(hashFromByte(10)))
	require.False(t, state.Contains(hashFromByte(11)))

	// Snapshots above the restored height are discarded.
	require.Error(t, state.RestoreSnapshot(2))
}

func TestRestoreUnknownSnapshot(t *testing.T) {
	state := New()
	require.Error(t, state.RestoreSnapshot(7))
}
