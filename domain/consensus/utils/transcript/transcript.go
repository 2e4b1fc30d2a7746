package transcript

import (
	"encoding/binary"
	"hash"
	"io"

	"filippo.io/edwards25519"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// protocolLabel versions the transcript framing itself. Changing it, the
// framing, or the hash function is a network-splitting change.
const protocolLabel = "flame.transcript.v1"

// ScalarSize is the byte length of an encoded challenge scalar.
const ScalarSize = 32

// scalarWideSize is the number of challenge bytes folded into a scalar.
const scalarWideSize = 64

// Transcript is a sequential, label-keyed commitment hash state. Its output
// depends solely on the exact ordered sequence of (label, bytes) appends
// since initialization: appends are not commutative, and two implementations
// fed identical sequences must emit bit-identical challenges.
//
// A Transcript owns its state exclusively. It must not be shared across
// concurrently executing computations; clone with Fork instead.
type Transcript struct {
	state [blake2b.Size256]byte
}

// New initializes a transcript under the given domain label. Transcripts
// initialized under different domains never collide.
func New(domainLabel string) *Transcript {
	t := &Transcript{}
	h := newHash()
	writeFrame(h, []byte(protocolLabel), []byte(domainLabel))
	h.Sum(t.state[:0])
	return t
}

// Fork returns an independent copy of the transcript's current state.
func (t *Transcript) Fork() *Transcript {
	clone := *t
	return &clone
}

// AppendMessage absorbs (label, data) into the transcript. Reordering
// appends changes every subsequent challenge.
func (t *Transcript) AppendMessage(label string, data []byte) {
	h := newHash()
	infallibleWrite(h, t.state[:])
	writeFrame(h, []byte(label), data)
	h.Sum(t.state[:0])
}

// AppendUint64 absorbs a uint64 in little-endian encoding under the given
// label.
func (t *Transcript) AppendUint64(label string, value uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	t.AppendMessage(label, buf[:])
}

// ChallengeBytes emits n challenge bytes bound to the given label and to
// every append made so far, then folds the challenge back into the state so
// later operations depend on it having been taken.
func (t *Transcript) ChallengeBytes(label string, n int) []byte {
	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], uint32(n))

	xof, err := blake2b.NewXOF(uint32(n), nil)
	if err != nil {
		// NewXOF only fails on oversized keys; we pass none.
		panic(errors.Wrap(err, "this should never happen. blake2b.NewXOF with no key cannot fail"))
	}
	infallibleWrite(xof, t.state[:])
	writeFrame(xof, []byte(label), sizeBuf[:])

	out := make([]byte, n)
	_, err = io.ReadFull(xof, out)
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. XOF reads of the declared size cannot fail"))
	}

	// Re-key the running state with the emitted challenge.
	h := newHash()
	infallibleWrite(h, t.state[:])
	writeFrame(h, []byte(label), out)
	h.Sum(t.state[:0])

	return out
}

// ChallengeScalar emits 64 challenge bytes and interprets them as a
// little-endian integer reduced modulo the ristretto group order, returning
// the scalar's canonical 32-byte little-endian encoding.
func (t *Transcript) ChallengeScalar(label string) [ScalarSize]byte {
	wide := t.ChallengeBytes(label, scalarWideSize)

	scalar, err := edwards25519.NewScalar().SetUniformBytes(wide)
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. SetUniformBytes accepts any 64 bytes"))
	}

	var out [ScalarSize]byte
	copy(out[:], scalar.Bytes())
	return out
}

func newHash() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// New256 only fails on oversized keys; we pass none.
		panic(errors.Wrap(err, "this should never happen. blake2b.New256 with no key cannot fail"))
	}
	return h
}

// writeFrame writes a length-prefixed (label, data) pair, so that
// ("ab","c") and ("a","bc") absorb differently.
func writeFrame(w io.Writer, label, data []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(label)))
	infallibleWrite(w, lenBuf[:])
	infallibleWrite(w, label)
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	infallibleWrite(w, lenBuf[:])
	infallibleWrite(w, data)
}

func infallibleWrite(w io.Writer, p []byte) {
	_, err := w.Write(p)
	if err != nil {
		// Hash writers promise to never return errors.
		panic(errors.Wrap(err, "this should never happen. hash.Hash interface promises to not return errors"))
	}
}
