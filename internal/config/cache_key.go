package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptAnswersKey returns the cache key for an attempt's autosaved answers.
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// AttemptSnapshotKey returns the cache key for an attempt's last snapshot
// metadata (remaining time, cursor).
func (r *CacheKeyStruct) AttemptSnapshotKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:snapshot", attemptID)
}

// UserActiveAttemptKey returns the cache key for a user's currently active attempt.
func (r *CacheKeyStruct) UserActiveAttemptKey(userID int) string {
	return fmt.Sprintf("user:%d:active_attempt", userID)
}

var CacheKey = NewCacheKeyStruct()
