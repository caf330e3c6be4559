// Package detection defines the disease detection contract and its implementations:
// a simulated detector for offline demos, a remote HTTP client, and an idempotent
// wrapper that caches results by image content.
package detection

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/kuapa/kuapa/backend/internal/errors"
	"github.com/kuapa/kuapa/backend/internal/models"
)

// Result is what a detector reports for one image.
type Result struct {
	Condition       *models.Condition `json:"condition"`
	Confidence      int               `json:"confidence" validate:"min=0,max=100"`
	IsHealthy       bool              `json:"isHealthy"`
	Recommendations []string          `json:"recommendations"`
}

// Detector classifies a captured image for a crop.
type Detector interface {
	Detect(ctx context.Context, image string, crop models.CropType) (Result, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, image string, crop models.CropType) (Result, error)

// Detect implements Detector.
func (f DetectorFunc) Detect(ctx context.Context, image string, crop models.CropType) (Result, error) {
	return f(ctx, image, crop)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func resultValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterStructValidation(func(sl validator.StructLevel) {
			r := sl.Current().Interface().(Result)
			if (r.Condition == nil) != r.IsHealthy {
				sl.ReportError(r.Condition, "Condition", "condition", "healthy_consistent", "")
			}
		}, Result{})
	})
	return validate
}

// Validate checks that confidence is a percentage and that a condition is present
// exactly when the result is not healthy.
func Validate(r Result) error {
	if err := resultValidator().Struct(r); err != nil {
		return apperrors.Wrap(apperrors.ErrDetectionInvalid, "detection result rejected", err)
	}
	return nil
}
