package types

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"math/bits"

	"golang.org/x/xerrors"
)

// KUIDLength is the number of bytes in a KUID.
const KUIDLength = 20

// KUIDBits is the number of bits in a KUID.
const KUIDBits = KUIDLength * 8

// KUID is a 160-bit Kademlia identifier. It identifies both nodes and keys.
type KUID [KUIDLength]byte

// RandomKUID returns a uniformly random KUID.
func RandomKUID() KUID {
	var id KUID
	_, err := rand.Read(id[:])
	if err != nil {
		panic(xerrors.Errorf("failed to read randomness: %v", err))
	}
	return id
}

// KUIDFromData returns the KUID of some data, i.e. its SHA-1 digest.
func KUIDFromData(data []byte) KUID {
	return KUID(sha1.Sum(data))
}

// KUIDFromHex parses a 40 characters hex string.
func KUIDFromHex(s string) (KUID, error) {
	var id KUID

	buf, err := hex.DecodeString(s)
	if err != nil {
		return id, xerrors.Errorf("invalid hex: %v", err)
	}
	if len(buf) != KUIDLength {
		return id, xerrors.Errorf("invalid length: expected %d bytes, got %d", KUIDLength, len(buf))
	}

	copy(id[:], buf)
	return id, nil
}

// Xor returns the XOR distance between two KUIDs.
func (k KUID) Xor(other KUID) KUID {
	var res KUID
	for i := range k {
		res[i] = k[i] ^ other[i]
	}
	return res
}

// Less compares two KUIDs as big-endian unsigned integers.
func (k KUID) Less(other KUID) bool {
	return bytes.Compare(k[:], other[:]) < 0
}

// IsZero tells whether the KUID is all zeros.
func (k KUID) IsZero() bool {
	return k == KUID{}
}

// Closer tells whether a is strictly closer to k than b.
func (k KUID) Closer(a, b KUID) bool {
	return k.Xor(a).Less(k.Xor(b))
}

// CommonPrefixLen returns the number of leading bits shared by the two KUIDs.
func (k KUID) CommonPrefixLen(other KUID) int {
	for i := range k {
		x := k[i] ^ other[i]
		if x != 0 {
			return i*8 + bits.LeadingZeros8(x)
		}
	}
	return KUIDBits
}

// RandomWithPrefix returns a random KUID sharing exactly prefixLen leading
// bits with k. It is used to pick a refresh target inside a bucket.
func (k KUID) RandomWithPrefix(prefixLen int) KUID {
	if prefixLen >= KUIDBits {
		return k
	}

	id := RandomKUID()
	for i := 0; i < prefixLen; i++ {
		setBit(&id, i, bit(k, i))
	}
	// the bit right after the prefix must differ
	setBit(&id, prefixLen, 1-bit(k, prefixLen))

	return id
}

// String returns the hex representation of the KUID.
func (k KUID) String() string {
	return hex.EncodeToString(k[:])
}

// Short returns the first 8 hex characters, for logs.
func (k KUID) Short() string {
	return k.String()[:8]
}

func bit(k KUID, i int) byte {
	return (k[i/8] >> (7 - uint(i%8))) & 1
}

func setBit(k *KUID, i int, v byte) {
	mask := byte(1) << (7 - uint(i%8))
	if v == 1 {
		k[i/8] |= mask
	} else {
		k[i/8] &^= mask
	}
}
