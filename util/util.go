package util

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// CryptoGenericHash returns the 32-byte blake2b digest of watermark || buffer
func CryptoGenericHash(bufferBytes []byte, watermark []byte) ([]byte, error) {
	return CryptoKeyedHash(nil, watermark, bufferBytes)
}

// CryptoKeyedHash returns the 32-byte blake2b MAC of all parts, in order, under key.
// A nil key produces a plain generic hash.
func CryptoKeyedHash(key []byte, parts ...[]byte) ([]byte, error) {

	// Generic hash of 32 bytes
	hashGen, err := blake2b.New(32, key)
	if err != nil {
		return nil, errors.Wrap(err, "Unable create blake2b hash object")
	}

	for _, p := range parts {
		if _, err := hashGen.Write(p); err != nil {
			return nil, errors.Wrap(err, "Unable write buffer bytes to hash function")
		}
	}

	return hashGen.Sum([]byte{}), nil
}

// DayBytes encodes a day ordinal as 8 little-endian bytes, the form used in derivation seeds
func DayBytes(day uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, day)
	return b
}

// AmountBytes encodes an amount as 8 little-endian bytes for operation digests
func AmountBytes(amount uint64) []byte {
	return DayBytes(amount)
}
