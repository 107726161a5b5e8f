package images

import (
	"bytes"

	"github.com/chai2010/webp"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// PreviewOptions controls the size and quality of preview frames pushed to remote viewers.
type PreviewOptions struct {
	// MaxWidth and MaxHeight bound the thumbnail, aspect ratio is preserved.
	MaxWidth  uint
	MaxHeight uint
	// Quality is the lossy WebP quality, 0..100.
	Quality float32
}

// DefaultPreviewOptions returns a 640x360 bound at quality 70.
func DefaultPreviewOptions() PreviewOptions {
	return PreviewOptions{MaxWidth: 640, MaxHeight: 360, Quality: 70}
}

// EncodePreview shrinks frame to fit the preview bounds and encodes it as WebP.
//
// Arguments:
//   - frame: The BGR frame to encode.
//   - opts: Size and quality bounds.
//
// Returns:
//   - []byte: The WebP bytes.
//   - error: An error if the frame is empty or encoding fails.
func EncodePreview(frame gocv.Mat, opts PreviewOptions) ([]byte, error) {
	if frame.Empty() {
		return nil, errors.New("preview: empty frame")
	}

	img, err := frame.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "preview: convert frame")
	}

	if opts.MaxWidth > 0 && opts.MaxHeight > 0 {
		img = resize.Thumbnail(opts.MaxWidth, opts.MaxHeight, img, resize.Bilinear)
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: opts.Quality}); err != nil {
		return nil, errors.Wrap(err, "preview: encode webp")
	}

	return buf.Bytes(), nil
}
