package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrUnsupportedImage = errors.New("insurance card must be a JPEG, PNG, WebP or HEIC image")
	ErrImageTooLarge    = errors.New("insurance card image is too large")
)

// Default limits for card images.
const (
	DefaultCardMaxBytes     = 10 << 20
	DefaultCardMaxDimension = 1600
)

var allowedCardTypes = []string{"image/jpeg", "image/png", "image/webp", "image/heic"}

// Attachment is a captured binary file.
type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ImageLimits bounds card images. Zero fields take the defaults.
type ImageLimits struct {
	MaxBytes     int64
	MaxDimension int
}

func (l ImageLimits) withDefaults() ImageLimits {
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultCardMaxBytes
	}
	if l.MaxDimension <= 0 {
		l.MaxDimension = DefaultCardMaxDimension
	}
	return l
}

// CaptureSource produces a card image. Implementations isolate whatever the
// environment offers (a file on disk, an upload, a camera) from the form.
type CaptureSource interface {
	Capture(ctx context.Context) (*Attachment, error)
}

// CaptureFunc adapts a function into a CaptureSource.
type CaptureFunc func(ctx context.Context) (*Attachment, error)

func (fn CaptureFunc) Capture(ctx context.Context) (*Attachment, error) { return fn(ctx) }

// FileCapture reads a card image from disk.
type FileCapture struct {
	Path   string
	Limits ImageLimits
}

func (f FileCapture) Capture(ctx context.Context) (*Attachment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limits := f.Limits.withDefaults()
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open card image: %w", err)
	}
	defer fh.Close()
	// Read past the limit so an oversized non-resizable file is detected.
	data, err := io.ReadAll(io.LimitReader(fh, limits.MaxBytes*4+1))
	if err != nil {
		return nil, fmt.Errorf("read card image: %w", err)
	}
	return PrepareImage(filepath.Base(f.Path), data, limits)
}

// PrepareImage checks the real content type of data and shrinks images whose
// longest side exceeds the limit. Formats imaging cannot decode (WebP, HEIC)
// pass through untouched when they already fit in MaxBytes.
func PrepareImage(name string, data []byte, limits ImageLimits) (*Attachment, error) {
	limits = limits.withDefaults()
	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), allowedCardTypes...) {
		return nil, fmt.Errorf("%w (got %s)", ErrUnsupportedImage, mt.String())
	}

	att := &Attachment{FileName: name, ContentType: mt.String(), Data: data}
	if mt.Is("image/jpeg") || mt.Is("image/png") {
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("decode card image: %w", err)
		}
		b := img.Bounds()
		if b.Dx() > limits.MaxDimension || b.Dy() > limits.MaxDimension || int64(len(data)) > limits.MaxBytes {
			resized := imaging.Fit(img, limits.MaxDimension, limits.MaxDimension, imaging.Lanczos)
			var buf bytes.Buffer
			if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
				return nil, fmt.Errorf("encode card image: %w", err)
			}
			att.Data = buf.Bytes()
			att.ContentType = "image/jpeg"
			att.FileName = strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"
		}
	}

	if int64(len(att.Data)) > limits.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrImageTooLarge, len(att.Data), limits.MaxBytes)
	}
	return att, nil
}

// CaptureCards runs the front and back sources (either may be nil) and
// attaches the results to the draft's insurance section.
func CaptureCards(ctx context.Context, d *Draft, front, back CaptureSource) error {
	if front != nil {
		att, err := front.Capture(ctx)
		if err != nil {
			return fmt.Errorf("capture card front: %w", err)
		}
		d.InsuranceInformation.CardFront = att
	}
	if back != nil {
		att, err := back.Capture(ctx)
		if err != nil {
			return fmt.Errorf("capture card back: %w", err)
		}
		d.InsuranceInformation.CardBack = att
	}
	return nil
}
