package jobs

import "time"

// Status は blob 削除タスクの状態です。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "done"
	StatusFailed    Status = "error"
)

// TaskTypeBlobDelete は blob 削除タスクの種類名です。
const TaskTypeBlobDelete = "blob:delete"

// BlobDeletePayload は削除タスクのペイロードです。
type BlobDeletePayload struct {
	Key string `json:"key"`
}

// Record は削除タスクの現在状態です。
type Record struct {
	Key       string    `json:"key"`
	Status    Status    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
