package bitbucket

import (
	"crypto/sha1" //nolint:gosec // Key digest, not a security boundary.
	"encoding/hex"
	"log/slog"
	"unicode/utf8"

	"github.com/ericfisherdev/prstatus/internal/domain/model"
)

// keyDigest hashes an over-long key. It is a variable so the truncation
// fallback can be exercised when no digest is available.
var keyDigest = func(b []byte) ([]byte, error) {
	sum := sha1.Sum(b) //nolint:gosec
	return sum[:], nil
}

// ComputeKey derives the build status key for prefix and suffix. Keys of at
// most model.MaxBuildStatusKeyLength characters are returned as "prefix-suffix";
// longer ones are replaced by the 40-character hex SHA-1 of that string, so
// the same input always addresses the same status entry.
func ComputeKey(prefix, suffix string) string {
	candidate := prefix + "-" + suffix
	if utf8.RuneCountInString(candidate) <= model.MaxBuildStatusKeyLength {
		return candidate
	}

	sum, err := keyDigest([]byte(candidate))
	if err != nil {
		slog.Warn("failed to hash build status key, truncating", "key", candidate, "error", err)
		return string([]rune(candidate)[:model.MaxBuildStatusKeyLength])
	}

	return hex.EncodeToString(sum)
}
