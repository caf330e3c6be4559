package models

import "time"

// GeoPoint is an optional capture location.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ScanRecord is the completed result of a detection round-trip.
// Records are immutable once appended to the history.
type ScanRecord struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	ImageURL          string     `json:"imageUrl"`
	ThumbnailURL      string     `json:"thumbnailUrl,omitempty"`
	CropType          CropType   `json:"cropType"`
	DetectedCondition *Condition `json:"detectedDisease"`
	Confidence        int        `json:"confidence"`
	IsHealthy         bool       `json:"isHealthy"`
	Recommendations   []string   `json:"recommendations"`
	CreatedAt         string     `json:"createdAt"`
	Location          *GeoPoint  `json:"location,omitempty"`
	Notes             string     `json:"notes,omitempty"`
}

// Consistent reports whether the healthy flag agrees with the detected condition.
func (r *ScanRecord) Consistent() bool {
	return (r.DetectedCondition == nil) == r.IsHealthy
}

// CreatedAtTime parses CreatedAt, returning the zero time when it is malformed.
func (r *ScanRecord) CreatedAtTime() time.Time {
	t, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Timestamp formats t the way CreatedAt fields are stored.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
