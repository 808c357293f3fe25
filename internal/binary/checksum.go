package binary

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DataHashPrefix tags the algorithm of a payload hash string.
const DataHashPrefix = "xxh64:"

// DataHash returns the hash string recorded for a stored payload.
func DataHash(data []byte) string {
	return fmt.Sprintf("%s%016x", DataHashPrefix, xxhash.Sum64(data))
}

// VerifyDataHash checks data against a recorded hash string.
func VerifyDataHash(data []byte, recorded string) error {
	if !strings.HasPrefix(recorded, DataHashPrefix) {
		return fmt.Errorf("unknown payload hash %q", recorded)
	}
	if got := DataHash(data); got != recorded {
		return fmt.Errorf("payload hash mismatch (stored=%s, computed=%s)", recorded, got)
	}
	return nil
}

// Fletcher32 computes the Fletcher-32 checksum over data.
//
// The input is treated as a sequence of 16-bit words in little-endian order.
// If the input has an odd number of bytes, it is padded with a zero byte.
func Fletcher32(data []byte) uint32 {
	var sum1, sum2 uint32

	length := len(data)
	i := 0
	for ; i+1 < length; i += 2 {
		word := uint32(data[i]) | uint32(data[i+1])<<8
		sum1 = (sum1 + word) % 65535
		sum2 = (sum2 + sum1) % 65535
	}

	if i < length {
		word := uint32(data[i])
		sum1 = (sum1 + word) % 65535
		sum2 = (sum2 + sum1) % 65535
	}

	return (sum2 << 16) | sum1
}
