package synth

import (
	"fmt"
	"hash/fnv"
	"strconv"
)

// uidRoot is the root used for every generated UID.
const uidRoot = "1.2.826.0.1.3680043.8.498."

// deterministicUID derives a valid DICOM UID (digits and dots, no leading
// zeros, at most 64 characters) from seed.
func deterministicUID(seed string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed)) // hash.Write never returns an error
	sum := h.Sum64()
	if sum == 0 {
		sum = 1
	}
	return uidRoot + strconv.FormatUint(sum, 10)
}

// caseSeed derives the RNG seed of one case from the run seed.
func caseSeed(seed int64, table string, index int) uint64 {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d_%s_case_%d", seed, table, index)
	return h.Sum64()
}
