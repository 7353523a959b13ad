package security

import (
	"crypto/sha256"
	"math/big"
)

// base58Alphabet is the Bitcoin-style base58 alphabet: no 0/O/I/l, so the
// encoded hash can't be confused with letters that look alike in a file
// path or log line.
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var base58BigRadix = big.NewInt(58)

// HashContent returns the base58(SHA-256(data)) content hash used to
// identify files, chunks and object-map entries.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return EncodeBase58(sum[:])
}

// EncodeBase58 encodes raw bytes in base58, preserving leading zero bytes
// as leading '1's per the usual convention.
func EncodeBase58(input []byte) string {
	if len(input) == 0 {
		return ""
	}
	x := new(big.Int).SetBytes(input)
	mod := new(big.Int)
	var out []byte
	zero := big.NewInt(0)
	for x.Cmp(zero) > 0 {
		x.DivMod(x, base58BigRadix, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}
	for _, b := range input {
		if b != 0 {
			break
		}
		out = append(out, base58Alphabet[0])
	}
	reverse(out)
	return string(out)
}

// DecodeBase58 decodes a base58 string back to raw bytes.
func DecodeBase58(s string) ([]byte, error) {
	x := big.NewInt(0)
	for _, r := range s {
		idx := indexByte(base58Alphabet, byte(r))
		if idx < 0 {
			return nil, errInvalidBase58Char(r)
		}
		x.Mul(x, base58BigRadix)
		x.Add(x, big.NewInt(int64(idx)))
	}

	decoded := x.Bytes()

	numLeadingZeros := 0
	for _, r := range s {
		if r != rune(base58Alphabet[0]) {
			break
		}
		numLeadingZeros++
	}

	out := make([]byte, numLeadingZeros+len(decoded))
	copy(out[numLeadingZeros:], decoded)
	return out, nil
}

func indexByte(alphabet string, b byte) int {
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] == b {
			return i
		}
	}
	return -1
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

type errInvalidBase58Char rune

func (e errInvalidBase58Char) Error() string {
	return "security: invalid base58 character " + string(rune(e))
}
