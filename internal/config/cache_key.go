package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// TestSessionKey returns the cache key holding a serialized test session
func (r *CacheKeyStruct) TestSessionKey(sessionID string) string {
	return fmt.Sprintf("test_session:%s", sessionID)
}

// TestSessionDeadlineIndex returns the sorted set of open sessions scored by deadline
func (r *CacheKeyStruct) TestSessionDeadlineIndex() string {
	return "test_session:deadlines"
}

var CacheKey = NewCacheKeyStruct()
