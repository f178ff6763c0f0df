// Package cache stores finished grading results keyed by the exact scoring
// input. A hit skips every model call for that essay, so the key must cover
// everything that changes the answer: task, question, essay, and grader model.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for result caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// CacheKey generates a cache key from the scoring input.
func CacheKey(taskType, question, essay, model string) string {
	h := sha256.New()
	for _, part := range []string{taskType, question, essay, model} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "bandmark:v1:" + hex.EncodeToString(h.Sum(nil))
}
