// Package catalog caches the reference condition catalog in the embedded store so it
// is available offline.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/kuapa/kuapa/backend/internal/errors"
	"github.com/kuapa/kuapa/backend/internal/kv"
	"github.com/kuapa/kuapa/backend/internal/logging"
	"github.com/kuapa/kuapa/backend/internal/models"
)

// KeyPrefix namespaces condition entries in the embedded store.
const KeyPrefix = "condition:"

// Cache reads and writes conditions through a ListAdapter.
type Cache struct {
	adapter kv.ListAdapter
}

// New creates a Cache over adapter.
func New(adapter kv.ListAdapter) *Cache {
	return &Cache{adapter: adapter}
}

func key(id string) string {
	return KeyPrefix + id
}

// Save stores each condition under its own key. It reports a STORAGE_ERROR naming
// the conditions that did not commit; the others stay saved.
func (c *Cache) Save(ctx context.Context, conditions ...models.Condition) error {
	var failed []string
	for _, cond := range conditions {
		if cond.ID == "" {
			return apperrors.New(apperrors.ErrInvalid, "condition id is required")
		}
		data, err := json.Marshal(cond)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, fmt.Sprintf("encode condition %s", cond.ID), err)
		}
		if !c.adapter.Set(ctx, key(cond.ID), string(data)) {
			failed = append(failed, cond.ID)
		}
	}
	if len(failed) > 0 {
		return apperrors.New(apperrors.ErrStorage,
			fmt.Sprintf("conditions not saved: %s", strings.Join(failed, ", ")))
	}
	return nil
}

// Get returns the condition with id.
func (c *Cache) Get(ctx context.Context, id string) (models.Condition, bool) {
	raw, ok := c.adapter.Get(ctx, key(id))
	if !ok {
		return models.Condition{}, false
	}
	var cond models.Condition
	if err := json.Unmarshal([]byte(raw), &cond); err != nil {
		logging.Warn("skipping unreadable condition", map[string]interface{}{
			"id":    id,
			"error": err.Error(),
		})
		return models.Condition{}, false
	}
	return cond, true
}

// All returns every cached condition ordered by id.
func (c *Cache) All(ctx context.Context) []models.Condition {
	keys := c.adapter.Keys(ctx, KeyPrefix)
	conditions := make([]models.Condition, 0, len(keys))
	for _, k := range keys {
		if cond, ok := c.Get(ctx, strings.TrimPrefix(k, KeyPrefix)); ok {
			conditions = append(conditions, cond)
		}
	}
	sort.Slice(conditions, func(i, j int) bool { return conditions[i].ID < conditions[j].ID })
	return conditions
}

// ByCrop returns the cached conditions affecting crop.
func (c *Cache) ByCrop(ctx context.Context, crop models.CropType) []models.Condition {
	return filterCrop(c.All(ctx), crop)
}

// Remove deletes the condition with id.
func (c *Cache) Remove(ctx context.Context, id string) bool {
	return c.adapter.Delete(ctx, key(id))
}

// EnsureSeeded saves the built-in catalog when the cache holds no conditions yet.
// It returns the number of conditions written.
func (c *Cache) EnsureSeeded(ctx context.Context) (int, error) {
	if len(c.adapter.Keys(ctx, KeyPrefix)) > 0 {
		return 0, nil
	}
	seed := Seed()
	if err := c.Save(ctx, seed...); err != nil {
		return 0, err
	}
	logging.Info("condition catalog seeded", map[string]interface{}{"count": len(seed)})
	return len(seed), nil
}

// SeedByCrop returns the built-in conditions affecting crop.
func SeedByCrop(crop models.CropType) []models.Condition {
	return filterCrop(Seed(), crop)
}

func filterCrop(conditions []models.Condition, crop models.CropType) []models.Condition {
	var out []models.Condition
	for i := range conditions {
		if conditions[i].Affects(crop) {
			out = append(out, conditions[i])
		}
	}
	return out
}
