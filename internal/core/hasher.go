package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"

	"github.com/TanmayDhobale/miniForesight/internal/ledger"
)

const GenesisHashSeed = "miniForesight:genesis:v1"

// StateHasher chains a hash over every committed event:
// state_hash[N] = SHA-256(prev_hash || sequence_le || digest[N]).
type StateHasher struct {
	prevHash [32]byte
}

// NewStateHasher starts a chain at the genesis hash.
func NewStateHasher() *StateHasher {
	return &StateHasher{prevHash: GenesisHash()}
}

// ResumeStateHasher continues a chain whose tip is prevHash.
func ResumeStateHasher(prevHash [32]byte) *StateHasher {
	return &StateHasher{prevHash: prevHash}
}

func GenesisHash() [32]byte {
	return sha256.Sum256([]byte(GenesisHashSeed))
}

// ComputeHash advances the chain by one event.
func (h *StateHasher) ComputeHash(sequence int64, digest []byte) [32]byte {
	hasher := sha256.New()
	hasher.Write(h.prevHash[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])

	hasher.Write(digest)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))
	h.prevHash = hash
	return hash
}

// GetPrevHash returns current chain tip
func (h *StateHasher) GetPrevHash() [32]byte {
	return h.prevHash
}

// EventDigest hashes an event's type, payload and journals.
func EventDigest(eventType string, payload []byte, journals []ledger.Journal) []byte {
	var raw []byte
	if len(journals) > 0 {
		raw, _ = json.Marshal(journals)
	}
	return RawEventDigest(eventType, payload, raw)
}

// RawEventDigest is EventDigest over journals already encoded as JSON, as
// read back from the event log.
func RawEventDigest(eventType string, payload, journals []byte) []byte {
	hasher := sha256.New()
	hasher.Write([]byte(eventType))
	hasher.Write(payload)
	hasher.Write(journals)
	return hasher.Sum(nil)
}

// VerifyChain recomputes a chain from prev over (sequence, digest) pairs and
// returns the index of the first mismatching hash, or -1.
func VerifyChain(prev [32]byte, sequences []int64, digests [][]byte, hashes [][32]byte) int {
	h := ResumeStateHasher(prev)
	for i := range sequences {
		if h.ComputeHash(sequences[i], digests[i]) != hashes[i] {
			return i
		}
	}
	return -1
}
