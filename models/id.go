// ABOUTME: Deterministic external ID derivation for dedup
// ABOUTME: Hashes source-specific natural keys into a stable fingerprint
package models

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// DeriveExternalID produces a stable identifier from a record's natural
// keys. The same keys always hash to the same id, so repeated extractions
// of an unchanged record dedup cleanly, and a changed natural key yields a
// new id. This is a dedup fingerprint, not an authentication token;
// collision resistance is not a requirement here.
func DeriveExternalID(source Source, naturalKeys ...string) string {
	sum := md5.Sum([]byte(string(source) + "|" + strings.Join(naturalKeys, "|")))
	return hex.EncodeToString(sum[:])
}
