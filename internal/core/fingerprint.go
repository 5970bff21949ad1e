package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashContent returns the hex SHA-256 of arbitrary content. Used to derive
// the content and objective components of a request fingerprint.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Fingerprint computes the deterministic identity of one upstream request.
// It is a pure function of its inputs: identical inputs always produce the
// same fingerprint regardless of call order, which makes it safe as a cache
// and deduplication key across concurrent runs.
func Fingerprint(agentName, model, contentHash, objectiveHash string) string {
	return HashContent(fmt.Sprintf("%s:%s:%s:%s", agentName, model, contentHash, objectiveHash))
}
