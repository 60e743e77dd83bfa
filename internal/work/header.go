package work

import (
	"encoding/binary"
	"time"
)

// HeaderFields are the components of an 80-byte Bitcoin block header
// that a work item's midstates are derived from, adapted from the
// teacher's BitcoinHeader/PrepareAsicJob (originally keyed by opaque
// "neural slots"; here keyed by the actual header fields a stratum job
// provides).
type HeaderFields struct {
	Version    uint32
	PrevHash   [32]byte
	MerkleRoot [32]byte
	Timestamp  uint32
	Bits       uint32
}

// BuildHeader assembles the 80-byte block header bosminer's chips hash
// against, for a given candidate nonce.
func BuildHeader(f HeaderFields, nonce uint32) []byte {
	header := make([]byte, 80)
	binary.LittleEndian.PutUint32(header[0:4], f.Version)
	copy(header[4:36], reversed(f.PrevHash[:]))
	copy(header[36:68], reversed(f.MerkleRoot[:]))
	if f.Timestamp != 0 {
		binary.LittleEndian.PutUint32(header[68:72], f.Timestamp)
	} else {
		binary.LittleEndian.PutUint32(header[68:72], uint32(time.Now().Unix()))
	}
	binary.LittleEndian.PutUint32(header[72:76], f.Bits)
	binary.LittleEndian.PutUint32(header[76:80], nonce)
	return header
}

// ExtractNonce reads the nonce field back out of an 80-byte header.
func ExtractNonce(header []byte) uint32 {
	if len(header) < 80 {
		return 0
	}
	return binary.LittleEndian.Uint32(header[76:80])
}

// ValidateHeader performs a basic length/field sanity check, kept from
// the teacher's ValidateHeader but without the fixed version/bits
// constants a real header's fields vary job to job.
func ValidateHeader(header []byte) bool {
	return len(header) == 80
}

func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
