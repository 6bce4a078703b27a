package harvest

import (
	"strconv"
	"strings"
)

// Bytes is a byte count which prints itself in a readable form like 1.2G or
// 4M. It is used when logging download sizes.
type Bytes uint64

var byteUnits = []string{"B", "K", "M", "G", "T"}

// String picks the largest unit that keeps the number at or above 1, and
// prints one decimal place unless it is zero.
func (b Bytes) String() string {
	if b == 0 {
		return "0"
	}
	value := float64(b)
	unit := 0
	for value >= 1024 && unit < len(byteUnits)-1 {
		value /= 1024
		unit++
	}
	s := strconv.FormatFloat(value, 'f', 1, 64)
	return strings.TrimSuffix(s, ".0") + byteUnits[unit]
}
