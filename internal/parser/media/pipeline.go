// Package media is the capture image pipeline: it decodes a camera payload, scales it
// down to fit the configured bounds and re-encodes it for storage and upload.
package media

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	apperrors "github.com/kuapa/kuapa/backend/internal/errors"
	"github.com/kuapa/kuapa/backend/internal/logging"
)

// Format is an output encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// MIMEType returns the media type of f.
func (f Format) MIMEType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// Constraints bound the processed image.
type Constraints struct {
	MaxWidth  int    `yaml:"max_width"`
	MaxHeight int    `yaml:"max_height"`
	Quality   int    `yaml:"quality"`
	Format    Format `yaml:"format"`
}

// DefaultConstraints fit captures in 1920x1920 at JPEG quality 80.
func DefaultConstraints() Constraints {
	return Constraints{MaxWidth: 1920, MaxHeight: 1920, Quality: 80, Format: FormatJPEG}
}

func (c Constraints) normalize() Constraints {
	d := DefaultConstraints()
	if c.MaxWidth <= 0 {
		c.MaxWidth = d.MaxWidth
	}
	if c.MaxHeight <= 0 {
		c.MaxHeight = d.MaxHeight
	}
	if c.Quality <= 0 {
		c.Quality = d.Quality
	}
	if c.Quality > 100 {
		c.Quality = 100
	}
	if c.Format != FormatPNG {
		c.Format = FormatJPEG
	}
	return c
}

// Result is a processed image.
type Result struct {
	Data           []byte
	MIMEType       string
	Width          int
	Height         int
	OriginalWidth  int
	OriginalHeight int
	OriginalSize   int
	// Resized is false when the source already fit the bounds. The payload is still
	// re-encoded.
	Resized bool
}

// Size is the encoded payload length in bytes.
func (r Result) Size() int { return len(r.Data) }

// DataURL returns the payload as a base64 data URL.
func (r Result) DataURL() string { return EncodeDataURL(r.Data, r.MIMEType) }

// Fit scales w x h down so neither side exceeds its bound, keeping the aspect ratio.
// Sizes already within bounds are returned unchanged.
func Fit(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	fw, fh := float64(w), float64(h)
	aspect := fw / fh
	if fw > float64(maxW) {
		fw = float64(maxW)
		fh = fw / aspect
	}
	if fh > float64(maxH) {
		fh = float64(maxH)
		fw = fh * aspect
	}
	nw := max(1, int(math.Round(fw)))
	nh := max(1, int(math.Round(fh)))
	return min(nw, w), min(nh, h)
}

// Process decodes payload, downscales it to fit c and re-encodes it. Decode failures
// are IMAGE_DECODE_FAILED and encode failures IMAGE_ENCODE_FAILED, so callers can
// fall back to the original payload.
func Process(payload []byte, c Constraints) (Result, error) {
	c = c.normalize()

	if len(payload) == 0 {
		return Result{}, apperrors.New(apperrors.ErrImageDecode, "empty image payload")
	}
	mt := mimetype.Detect(payload)
	if !strings.HasPrefix(mt.String(), "image/") {
		return Result{}, apperrors.New(apperrors.ErrImageDecode,
			fmt.Sprintf("unsupported payload type %s", mt.String()))
	}

	img, err := imaging.Decode(bytes.NewReader(payload), imaging.AutoOrientation(true))
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.ErrImageDecode, "failed to decode image", err)
	}

	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	dstW, dstH := Fit(srcW, srcH, c.MaxWidth, c.MaxHeight)
	resized := dstW != srcW || dstH != srcH

	var out image.Image = img
	if resized {
		out = imaging.Resize(img, dstW, dstH, imaging.Lanczos)
	}

	data, err := encode(out, c)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.ErrImageEncode, "failed to encode image", err)
	}

	logging.Debug("image processed", map[string]interface{}{
		"source_type":   mt.String(),
		"original":      fmt.Sprintf("%dx%d", srcW, srcH),
		"output":        fmt.Sprintf("%dx%d", dstW, dstH),
		"original_size": humanize.Bytes(uint64(len(payload))),
		"output_size":   humanize.Bytes(uint64(len(data))),
	})

	return Result{
		Data:           data,
		MIMEType:       c.Format.MIMEType(),
		Width:          dstW,
		Height:         dstH,
		OriginalWidth:  srcW,
		OriginalHeight: srcH,
		OriginalSize:   len(payload),
		Resized:        resized,
	}, nil
}

func encode(img image.Image, c Constraints) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	if c.Format == FormatPNG {
		err = imaging.Encode(&buf, img, imaging.PNG)
	} else {
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(c.Quality))
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ProcessDataURL is Process for a data URL or bare base64 payload.
func ProcessDataURL(s string, c Constraints) (Result, error) {
	payload, _, err := DecodeDataURL(s)
	if err != nil {
		return Result{}, err
	}
	return Process(payload, c)
}

// Thumbnail returns a size x size bounded JPEG preview of payload.
func Thumbnail(payload []byte, size int) (Result, error) {
	if size <= 0 {
		size = 200
	}
	return Process(payload, Constraints{MaxWidth: size, MaxHeight: size, Quality: 70, Format: FormatJPEG})
}

// DecodeDataURL returns the bytes and declared media type of a base64 data URL. A
// bare base64 string is accepted and its media type sniffed.
func DecodeDataURL(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	declared := ""
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, "", apperrors.New(apperrors.ErrImageDecode, "malformed data URL")
		}
		meta := s[len("data:"):comma]
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", apperrors.New(apperrors.ErrImageDecode, "data URL is not base64 encoded")
		}
		declared = strings.TrimSuffix(meta, ";base64")
		s = s[comma+1:]
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrImageDecode, "invalid base64 payload", err)
	}
	if declared == "" {
		declared = mimetype.Detect(data).String()
	}
	return data, declared, nil
}

// EncodeDataURL formats data as a base64 data URL.
func EncodeDataURL(data []byte, mimeType string) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
