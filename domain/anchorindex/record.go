package anchorindex

import (
	"encoding/binary"

	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
	"github.com/pkg/errors"
)

// BidRecord is one confirmed bid as seen on the anchor chain: which anchor
// block carries it, where its output sits, which bag it commits to, and how
// much it burned.
type BidRecord struct {
	AnchorBlockHash *externalapi.DomainHash
	AnchorHeight    uint64
	AnchorTxID      *externalapi.DomainHash
	OutputIndex     uint32
	BagID           *externalapi.DomainHash
	Amount          uint64
}

// Clone returns a clone of BidRecord
func (r *BidRecord) Clone() *BidRecord {
	clone := *r
	return &clone
}

const serializedBidRecordSize = externalapi.DomainHashSize*3 + 8 + 4 + 8

// serialize encodes the record in a fixed-width little-endian layout.
func (r *BidRecord) serialize() []byte {
	buf := make([]byte, 0, serializedBidRecordSize)
	buf = append(buf, r.AnchorBlockHash.ByteSlice()...)
	buf = binary.LittleEndian.AppendUint64(buf, r.AnchorHeight)
	buf = append(buf, r.AnchorTxID.ByteSlice()...)
	buf = binary.LittleEndian.AppendUint32(buf, r.OutputIndex)
	buf = append(buf, r.BagID.ByteSlice()...)
	buf = binary.LittleEndian.AppendUint64(buf, r.Amount)
	return buf
}

func deserializeBidRecord(data []byte) (*BidRecord, error) {
	if len(data) != serializedBidRecordSize {
		return nil, errors.Errorf("serialized bid record is %d bytes, want %d",
			len(data), serializedBidRecordSize)
	}

	offset := 0
	readHash := func() *externalapi.DomainHash {
		hash, err := externalapi.NewDomainHashFromByteSlice(data[offset : offset+externalapi.DomainHashSize])
		if err != nil {
			panic(errors.Wrap(err, "this should never happen. Slice length is exactly the hash size"))
		}
		offset += externalapi.DomainHashSize
		return hash
	}

	record := &BidRecord{}
	record.AnchorBlockHash = readHash()
	record.AnchorHeight = binary.LittleEndian.Uint64(data[offset:])
	offset += 8
	record.AnchorTxID = readHash()
	record.OutputIndex = binary.LittleEndian.Uint32(data[offset:])
	offset += 4
	record.BagID = readHash()
	record.Amount = binary.LittleEndian.Uint64(data[offset:])

	return record, nil
}
