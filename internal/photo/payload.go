// Package photo handles offline inspection photos: validating and
// thumbnailing captured images, uploading the backlog to object storage,
// and watching a drop directory for new captures.
package photo

import (
	"bytes"
	"image/jpeg"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	apperrors "github.com/brightpath-energy/fieldsync/internal/errors"
)

const (
	// ThumbnailMaxDim bounds both thumbnail dimensions; aspect ratio is
	// preserved.
	ThumbnailMaxDim = 320

	thumbnailJPEGQuality = 85
)

// DetectContentType sniffs the MIME type from the payload bytes. The
// caller-supplied extension is never trusted.
func DetectContentType(data []byte) string {
	return mimetype.Detect(data).String()
}

// ValidateImage checks that data is a supported image payload and returns
// its detected content type.
func ValidateImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperrors.New(apperrors.ErrPhotoInvalid, "empty photo payload")
	}
	ct := DetectContentType(data)
	if !strings.HasPrefix(ct, "image/") {
		return "", apperrors.New(apperrors.ErrPhotoInvalid, "unsupported content type "+ct)
	}
	return ct, nil
}

// Thumbnail renders a JPEG thumbnail of the image payload, fitted inside
// ThumbnailMaxDim on both axes.
func Thumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrPhotoInvalid, "failed to decode photo", err)
	}

	thumb := imaging.Fit(img, ThumbnailMaxDim, ThumbnailMaxDim, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: thumbnailJPEGQuality}); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to encode thumbnail", err)
	}
	return buf.Bytes(), nil
}
