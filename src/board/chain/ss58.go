package chain

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

var ErrInvalidAddress = errors.New("invalid ss58 address")

var ss58Pre = []byte("SS58PRE")

// DecodeSS58 converts an SS58 address, or a 0x-prefixed hex public key, to
// the raw 32-byte public key. The checksum is verified.
func DecodeSS58(addr string) ([]byte, error) {
	if strings.HasPrefix(addr, "0x") {
		raw, err := hex.DecodeString(addr[2:])
		if err != nil || len(raw) != 32 {
			return nil, ErrInvalidAddress
		}
		return raw, nil
	}

	raw, err := base58.Decode(addr)
	if err != nil || len(raw) < 35 {
		return nil, ErrInvalidAddress
	}
	prefixLen := 1
	if raw[0]&0x40 != 0 {
		prefixLen = 2
	}
	if len(raw) != prefixLen+32+2 {
		return nil, ErrInvalidAddress
	}

	body := raw[:prefixLen+32]
	sum := blake2b.Sum512(append(append([]byte{}, ss58Pre...), body...))
	if !bytes.Equal(sum[:2], raw[prefixLen+32:]) {
		return nil, ErrInvalidAddress
	}
	return raw[prefixLen : prefixLen+32], nil
}

// EncodeSS58 renders a 32-byte public key as an SS58 address for the
// given network prefix.
func EncodeSS58(pub []byte, prefix uint16) string {
	var head []byte
	if prefix < 64 {
		head = []byte{byte(prefix)}
	} else {
		head = []byte{0x40 | byte(prefix>>8)&0x3f, byte(prefix)}
	}
	body := append(head, pub...)
	sum := blake2b.Sum512(append(append([]byte{}, ss58Pre...), body...))
	return base58.Encode(append(body, sum[:2]...))
}
