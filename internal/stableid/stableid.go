// Package stableid derives deterministic message identifiers from an
// external seed. The derivation is a frozen, versioned contract: changing it
// would break reproducibility of ids already assigned in existing projects.
package stableid

import (
	"crypto/sha256"
	"encoding/base32"
	"strconv"
	"strings"
)

// Version of the derivation scheme. Bump only together with a migration for
// previously assigned ids.
const Version = 1

const idLength = 12

var encoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// Derive returns the candidate id for the given seed and probe offset. The
// same (seed, offset) pair always yields the same id. Ids start with "m" so
// they never collide with ids assigned by other schemes and stay safe as
// file path stems.
func Derive(seed string, offset int) string {
	sum := sha256.Sum256([]byte(seed + "\x00" + strconv.Itoa(offset)))
	return "m" + strings.ToLower(encoding.EncodeToString(sum[:]))[:idLength]
}
