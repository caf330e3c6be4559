package detection

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/kuapa/kuapa/backend/internal/catalog"
	apperrors "github.com/kuapa/kuapa/backend/internal/errors"
	"github.com/kuapa/kuapa/backend/internal/models"
)

// ConditionSource lists the candidate conditions for a crop.
type ConditionSource func(ctx context.Context, crop models.CropType) []models.Condition

// Mock simulates a detection service with realistic latency.
type Mock struct {
	minLatency  time.Duration
	maxLatency  time.Duration
	healthyRate float64
	conditions  ConditionSource

	mu  sync.Mutex
	rng *rand.Rand
}

// MockOption configures a Mock.
type MockOption func(*Mock)

// WithLatency sets the simulated processing time range.
func WithLatency(lo, hi time.Duration) MockOption {
	return func(m *Mock) {
		if hi < lo {
			hi = lo
		}
		m.minLatency, m.maxLatency = lo, hi
	}
}

// WithHealthyRate sets the share of captures reported healthy.
func WithHealthyRate(rate float64) MockOption {
	return func(m *Mock) { m.healthyRate = rate }
}

// WithConditions replaces the built-in catalog as the condition source.
func WithConditions(source ConditionSource) MockOption {
	return func(m *Mock) { m.conditions = source }
}

// WithSeed makes the simulated outcomes reproducible.
func WithSeed(seed uint64) MockOption {
	return func(m *Mock) { m.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// NewMock creates a Mock taking 1.5 to 3 seconds per image and reporting 70% of
// captures healthy.
func NewMock(opts ...MockOption) *Mock {
	m := &Mock{
		minLatency:  1500 * time.Millisecond,
		maxLatency:  3 * time.Second,
		healthyRate: 0.7,
		conditions: func(_ context.Context, crop models.CropType) []models.Condition {
			return catalog.SeedByCrop(crop)
		},
		rng: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Detect implements Detector.
func (m *Mock) Detect(ctx context.Context, image string, crop models.CropType) (Result, error) {
	if image == "" {
		return Result{}, apperrors.New(apperrors.ErrDetectionFailed, "empty image")
	}

	m.mu.Lock()
	delay := m.minLatency
	if span := m.maxLatency - m.minLatency; span > 0 {
		delay += time.Duration(m.rng.Int64N(int64(span)))
	}
	roll := m.rng.Float64()
	pick := m.rng.IntN(1 << 16)
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Result{}, apperrors.Wrap(apperrors.ErrDetectionFailed, "detection cancelled", ctx.Err())
		}
	}

	candidates := m.conditions(ctx, crop)
	if roll >= m.healthyRate && len(candidates) > 0 {
		cond := candidates[pick%len(candidates)]
		return Result{
			Condition:       &cond,
			Confidence:      75 + m.intn(23),
			Recommendations: Recommendations(&cond),
		}, nil
	}

	return Result{
		Confidence:      85 + m.intn(15),
		IsHealthy:       true,
		Recommendations: HealthyTips(crop),
	}, nil
}

func (m *Mock) intn(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.IntN(n)
}

// Recommendations derives the advice list for a detected condition: an urgency line
// for severe conditions, the first cultural and organic treatments, a prevention tip
// and a referral for severe cases.
func Recommendations(cond *models.Condition) []string {
	var recs []string
	switch cond.Severity {
	case models.SeverityCritical:
		recs = append(recs, "URGENT: Immediate action required to prevent spread")
	case models.SeverityHigh:
		recs = append(recs, "Take action within the next few days")
	}
	if len(cond.Treatment.Cultural) > 0 {
		recs = append(recs, cond.Treatment.Cultural[0])
	}
	if len(cond.Treatment.Organic) > 0 {
		recs = append(recs, cond.Treatment.Organic[0])
	}
	if len(cond.Prevention) > 0 {
		recs = append(recs, fmt.Sprintf("Prevention: %s", cond.Prevention[0]))
	}
	if cond.Severity.AtLeast(models.SeverityHigh) {
		recs = append(recs, "Consult with local agricultural extension officer for detailed guidance")
	}
	return recs
}

var healthyTips = map[models.CropType][]string{
	models.CropCocoa: {
		"Your cocoa plant looks healthy! Continue regular monitoring",
		"Maintain proper pruning to ensure good air circulation",
		"Apply balanced fertilizer during the growing season",
		"Remove any debris around the tree base",
	},
	models.CropCassava: {
		"Your cassava plant appears healthy! Keep up the good work",
		"Continue weeding to reduce pest habitat",
		"Monitor for whiteflies regularly",
		"Ensure proper spacing for next planting",
	},
	models.CropMaize: {
		"Your maize crop looks healthy! Continue current practices",
		"Monitor for signs of streak virus as plants grow",
		"Apply nitrogen fertilizer at knee-high stage if needed",
		"Scout for stem borers regularly",
	},
	models.CropPlantain: {
		"Your plantain looks healthy! Maintain current care",
		"Continue regular de-suckering practices",
		"Apply mulch around the base",
		"Monitor older leaves for early disease signs",
	},
	models.CropRice: {
		"Your rice crop appears healthy",
		"Maintain proper water levels",
		"Monitor for blast disease symptoms",
		"Apply fertilizer according to growth stage",
	},
	models.CropTomato: {
		"Your tomato plant looks healthy",
		"Stake plants for better support",
		"Water at the base to prevent leaf diseases",
		"Remove lower leaves as fruits develop",
	},
	models.CropPepper: {
		"Your pepper plant appears healthy",
		"Ensure consistent watering",
		"Monitor for aphids and whiteflies",
		"Apply mulch to retain moisture",
	},
	models.CropOther: {
		"Your crop appears healthy",
		"Continue regular monitoring",
		"Maintain good agricultural practices",
		"Consult extension services for specific advice",
	},
}

// HealthyTips returns the care tips for a healthy crop.
func HealthyTips(crop models.CropType) []string {
	tips, ok := healthyTips[crop]
	if !ok {
		tips = healthyTips[models.CropOther]
	}
	out := make([]string, len(tips))
	copy(out, tips)
	return out
}
