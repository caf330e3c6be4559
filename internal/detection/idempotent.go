package detection

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/kuapa/kuapa/backend/internal/kv"
	"github.com/kuapa/kuapa/backend/internal/logging"
	"github.com/kuapa/kuapa/backend/internal/models"
)

// CacheKeyPrefix namespaces cached results in the embedded store.
const CacheKeyPrefix = "detection:"

// Idempotent returns the first validated result seen for an image and crop, so a
// capture retried after a crash is classified the same way twice.
type Idempotent struct {
	next    Detector
	adapter kv.Adapter
}

// NewIdempotent wraps next with a result cache stored through adapter.
func NewIdempotent(next Detector, adapter kv.Adapter) *Idempotent {
	return &Idempotent{next: next, adapter: adapter}
}

// CalculateHash returns the SHA-256 hex digest of data.
func CalculateHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// CacheKey is the store key of the cached result for image and crop.
func CacheKey(image string, crop models.CropType) string {
	return CacheKeyPrefix + CalculateHash([]byte(image)) + ":" + string(crop)
}

// Detect implements Detector.
func (d *Idempotent) Detect(ctx context.Context, image string, crop models.CropType) (Result, error) {
	key := CacheKey(image, crop)
	if raw, ok := d.adapter.Get(ctx, key); ok {
		var cached Result
		if err := json.Unmarshal([]byte(raw), &cached); err == nil && Validate(cached) == nil {
			return cached, nil
		}
		logging.Warn("discarding unreadable cached detection", map[string]interface{}{"key": key})
	}

	result, err := d.next.Detect(ctx, image, crop)
	if err != nil {
		return Result{}, err
	}
	if err := Validate(result); err != nil {
		return Result{}, err
	}

	if data, err := json.Marshal(result); err == nil {
		d.adapter.Set(ctx, key, string(data))
	}
	return result, nil
}

// Forgetter is implemented by detectors that keep per-capture state.
type Forgetter interface {
	Forget(ctx context.Context, image string, crop models.CropType)
}

// Forget drops the cached result for image and crop.
func (d *Idempotent) Forget(ctx context.Context, image string, crop models.CropType) {
	d.adapter.Delete(ctx, CacheKey(image, crop))
}
