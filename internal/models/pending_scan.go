package models

import "time"

// SyncStatus is the state of a pending scan in the sync queue.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusFailed  SyncStatus = "failed"
)

// PendingScan is a capture whose detection result has not been confirmed yet.
type PendingScan struct {
	ID         string     `json:"id"`
	ImageData  string     `json:"imageData"`
	CropType   CropType   `json:"cropType"`
	CreatedAt  string     `json:"createdAt"`
	SyncStatus SyncStatus `json:"syncStatus"`
	UpdatedAt  string     `json:"updatedAt"`
	Attempts   int        `json:"attempts"`
	LastError  string     `json:"lastError,omitempty"`
	// NeedsReview is set when the detector rejected the capture itself; scheduled
	// passes skip such items until they are retried explicitly.
	NeedsReview bool `json:"needsReview,omitempty"`
}

// UpdatedAtTime parses UpdatedAt, falling back to CreatedAt.
func (p *PendingScan) UpdatedAtTime() time.Time {
	for _, raw := range []string{p.UpdatedAt, p.CreatedAt} {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
