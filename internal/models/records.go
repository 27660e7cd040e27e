package models

import "time"

// CacheRecord is the durable row behind an exact-cache entry.
type CacheRecord struct {
	QueryHash string    `gorm:"primaryKey;size:64" json:"queryHash"`
	Result    string    `gorm:"type:text;not null" json:"result"`
	Model     string    `gorm:"size:128;index" json:"model"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

func (CacheRecord) TableName() string { return "diagnosis_cache" }

// DiagnosisEvent records one Diagnose call. The query itself is never
// stored, only its hash.
type DiagnosisEvent struct {
	ID         string      `gorm:"primaryKey;size:36" json:"id"`
	RequestID  string      `gorm:"size:64;index" json:"requestId"`
	QueryHash  string      `gorm:"size:64" json:"queryHash"`
	Model      string      `gorm:"size:128;index" json:"model"`
	Success    bool        `json:"success"`
	ErrorKind  FailureKind `gorm:"size:32" json:"errorKind,omitempty"`
	FromCache  bool        `json:"fromCache"`
	CacheTier  CacheTier   `gorm:"size:16" json:"cacheTier,omitempty"`
	LatencyMs  int64       `json:"latencyMs"`
	Attempts   int         `json:"attempts"`
	PinnedUsed bool        `json:"pinnedUsed"`
	CreatedAt  time.Time   `gorm:"index" json:"createdAt"`
}

func (DiagnosisEvent) TableName() string { return "diagnosis_events" }
