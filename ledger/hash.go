package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
	"unicode/utf16"
)

const (
	hashSeed       uint64 = 3074457345618258791
	hashMultiplier uint64 = 3074457345618258799
)

// Hash returns the 16 character marker name for a transaction id
func Hash(transactionID string) string {
	h := hashSeed
	for _, unit := range utf16.Encode([]rune(transactionID)) {
		h += uint64(unit)
		h *= hashMultiplier
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], h)
	return strings.ToUpper(hex.EncodeToString(b[:]))
}
