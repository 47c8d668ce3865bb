package chain

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/OneOfOne/xxhash"
	"golang.org/x/crypto/blake2b"
)

// AccountKey is the System.Account storage key for a public key.
func AccountKey(pub []byte) []byte {
	key := append(Twox128([]byte("System")), Twox128([]byte("Account"))...)
	return append(key, Blake2_128Concat(pub)...)
}

// Twox128 implements the TwoX 128-bit hash
func Twox128(data []byte) []byte {
	hash1 := xxhash.NewS64(0)
	hash1.Write(data)
	hash2 := xxhash.NewS64(1)
	hash2.Write(data)

	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out[0:], hash1.Sum64())
	binary.LittleEndian.PutUint64(out[8:], hash2.Sum64())
	return out
}

func Blake2_128Concat(data []byte) []byte {
	h, _ := blake2b.New(16, nil) // size 16 is always valid
	h.Write(data)
	return append(h.Sum(nil), data...)
}

// FreeBalance extracts data.free from an encoded AccountInfo:
// nonce, consumers, providers, sufficients (u32 each) then free as u128.
func FreeBalance(raw []byte) (*big.Int, error) {
	const offset = 16
	if len(raw) < offset+16 {
		return nil, fmt.Errorf("account info too short: %d bytes", len(raw))
	}
	return decodeU128(raw[offset : offset+16]), nil
}

func decodeU128(le []byte) *big.Int {
	be := make([]byte, len(le))
	for i := range le {
		be[len(le)-1-i] = le[i]
	}
	return new(big.Int).SetBytes(be)
}
