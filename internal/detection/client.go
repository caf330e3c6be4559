package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/kuapa/kuapa/backend/internal/errors"
	"github.com/kuapa/kuapa/backend/internal/models"
)

// DefaultTimeout bounds one remote detection call.
const DefaultTimeout = 30 * time.Second

type detectRequest struct {
	Image    string          `json:"image"`
	CropType models.CropType `json:"cropType"`
}

// Client calls a remote detection service over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a Client posting to endpoint.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Detect implements Detector. Transport failures and non-2xx responses are
// DETECTION_FAILED; malformed results are DETECTION_INVALID_RESULT.
func (c *Client) Detect(ctx context.Context, image string, crop models.CropType) (Result, error) {
	body, err := json.Marshal(detectRequest{Image: image, CropType: crop})
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.ErrDetectionFailed, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.ErrDetectionFailed, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.ErrDetectionFailed, "detection service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, apperrors.New(apperrors.ErrDetectionFailed,
			fmt.Sprintf("detection service returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg)))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, apperrors.Wrap(apperrors.ErrDetectionInvalid, "decode detection response", err)
	}
	if err := Validate(result); err != nil {
		return Result{}, err
	}
	return result, nil
}
