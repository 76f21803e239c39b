package encoder

import (
	"math/big"
	"strconv"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
const base = uint64(len(alphabet))

var bigBase = big.NewInt(int64(base))

// Encode converts a number to a base62 string
func Encode(num uint64) string {
	if num == 0 {
		return string(alphabet[0])
	}

	var buf [11]byte // 62^11 > 2^64
	i := len(buf)
	for num > 0 {
		i--
		buf[i] = alphabet[num%base]
		num = num / base
	}

	return string(buf[i:])
}

// EncodePair builds a short code from a time bucket and the sequence issued
// within it. The decimal digits of bucket and sequence are concatenated into
// one integer which is then base62 encoded, so (1700000000, 7) encodes the
// number 17000000007.
func EncodePair(bucket, sequence uint64) string {
	digits := strconv.FormatUint(bucket, 10) + strconv.FormatUint(sequence, 10)

	if num, err := strconv.ParseUint(digits, 10, 64); err == nil {
		return Encode(num)
	}

	// Concatenation overflowed uint64.
	n, _ := new(big.Int).SetString(digits, 10)
	return encodeBig(n)
}

func encodeBig(n *big.Int) string {
	if n.Sign() == 0 {
		return string(alphabet[0])
	}

	var out []byte
	rem := new(big.Int)
	n = new(big.Int).Set(n)
	for n.Sign() > 0 {
		n.QuoRem(n, bigBase, rem)
		out = append(out, alphabet[rem.Int64()])
	}

	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return string(out)
}

// Decode converts a base62 string back to a number.
// ok is false for characters outside the alphabet or values above uint64.
func Decode(encoded string) (num uint64, ok bool) {
	if encoded == "" {
		return 0, false
	}

	for i := 0; i < len(encoded); i++ {
		idx := indexOf(encoded[i])
		if idx < 0 {
			return 0, false
		}
		if num > (^uint64(0)-uint64(idx))/base {
			return 0, false
		}
		num = num*base + uint64(idx)
	}

	return num, true
}

// Valid reports whether s is a non-empty string over the base62 alphabet.
func Valid(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if indexOf(s[i]) < 0 {
			return false
		}
	}
	return true
}

func indexOf(char byte) int {
	switch {
	case char >= '0' && char <= '9':
		return int(char - '0')
	case char >= 'A' && char <= 'Z':
		return int(char-'A') + 10
	case char >= 'a' && char <= 'z':
		return int(char-'a') + 36
	}
	return -1
}
