package experiment

import (
	"github.com/cespare/xxhash/v2"
)

// Bucket returns a deterministic bucket (0-99) for the given identity and
// experiment. The same identity + experimentID + salt combination always
// returns the same bucket; this is the single fixed hash construction for
// stable variant assignment, so changing it reshuffles every user.
func Bucket(identityKey, experimentID, salt string) int {
	if identityKey == "" {
		return -1 // Invalid: no identity
	}
	key := identityKey + ":" + experimentID + ":" + salt
	hash := xxhash.Sum64String(key)
	return int(hash % 100) // Returns 0-99
}

// variantForBucket walks variants in definition order accumulating weight
// until the bucket falls under the cumulative sum. Falls back to the
// control variant if the walk exhausts without a match, which guards
// against floating-point weight-sum drift.
func variantForBucket(bucket float64, variants []Variant) *Variant {
	cumulative := 0.0
	for i := range variants {
		cumulative += variants[i].Weight
		if bucket < cumulative {
			return &variants[i]
		}
	}
	for i := range variants {
		if variants[i].IsControl {
			return &variants[i]
		}
	}
	return nil
}
