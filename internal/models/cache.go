package models

import "time"

// CacheEntry is one exact-cache record keyed by normalized query hash.
type CacheEntry struct {
	QueryHash string      `json:"queryHash"`
	Result    ICD10Result `json:"result"`
	Timestamp time.Time   `json:"timestamp"`
	Model     string      `json:"model"`
}

// SemanticEntry is the payload stored next to an embedding vector.
type SemanticEntry struct {
	Query     string      `json:"query"`
	Result    ICD10Result `json:"result"`
	Model     string      `json:"model"`
	Timestamp time.Time   `json:"timestamp"`
}

// SemanticHit is a semantic-cache match above threshold and within TTL.
type SemanticHit struct {
	Entry      SemanticEntry
	Similarity float64
}

// ExactCacheStats reports tier sizes.
type ExactCacheStats struct {
	MemoryCount  int        `json:"memoryCount"`
	DurableCount int        `json:"dbCount"`
	OldestEntry  *time.Time `json:"oldestEntry,omitempty"`
}

// SemanticCacheStats reports semantic cache configuration and size.
type SemanticCacheStats struct {
	Configured bool    `json:"configured"`
	Backend    string  `json:"backend"`
	Entries    int     `json:"entries"`
	Threshold  float64 `json:"threshold"`
	TTLSeconds int64   `json:"ttlSeconds"`
}

// CacheMetricsSnapshot mirrors the hit/miss tracker.
type CacheMetricsSnapshot struct {
	SemanticHits       int64   `json:"semanticHits"`
	ExactHits          int64   `json:"exactHits"`
	Misses             int64   `json:"misses"`
	TotalRequests      int64   `json:"totalRequests"`
	AvgSemanticLatency float64 `json:"avgSemanticLatency"`
	AvgExactLatency    float64 `json:"avgExactLatency"`
	AvgMissLatency     float64 `json:"avgMissLatency"`
	AvgSimilarity      float64 `json:"avgSimilarity"`
	SemanticHitRate    float64 `json:"semanticHitRate"`
	ExactHitRate       float64 `json:"exactHitRate"`
	TotalHitRate       float64 `json:"totalHitRate"`
	LatencyImprovement float64 `json:"latencyImprovement"`
}
