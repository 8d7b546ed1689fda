// Package otp generates and compares one-time passcodes.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
)

// Digits is the length of every generated code.
const Digits = 6

// Generate returns a uniformly distributed 6-digit code such as "042917".
// Leading zeros are kept.
func Generate() (string, error) {
	return generate(rand.Reader)
}

func generate(r io.Reader) (string, error) {
	s := make([]byte, 0, Digits)
	buf := make([]byte, Digits)
	for len(s) < Digits {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			// 250 is the largest multiple of 10 below 256; higher bytes would skew toward 0-5.
			if b >= 250 {
				continue
			}
			s = append(s, '0'+b%10)
			if len(s) == Digits {
				break
			}
		}
	}
	return string(s), nil
}

// Hash returns the hex SHA-256 of code. Stores keep the hash, never the code.
func Hash(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// Equal reports whether provided hashes to storedHash, in constant time.
// Comparison is exact: no trimming or case folding.
func Equal(provided, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(Hash(provided)), []byte(storedHash)) == 1
}
