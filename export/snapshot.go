package export

import (
	"bytes"
	"os"

	"github.com/chai2010/webp"
	"github.com/nvr-ai/galton-goalie/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// SnapshotQuality is the lossy quality used for WebP and JPEG snapshots.
const SnapshotQuality = 90

// EncodeSnapshot encodes a BGR frame in the given format.
func EncodeSnapshot(frame gocv.Mat, format images.ImageFormat) ([]byte, error) {
	if frame.Empty() {
		return nil, errors.New("snapshot of empty frame")
	}

	switch format {
	case images.FormatWebP:
		img, err := frame.ToImage()
		if err != nil {
			return nil, errors.Wrap(err, "convert frame")
		}
		var buf bytes.Buffer
		if err := webp.Encode(&buf, img, &webp.Options{Quality: SnapshotQuality}); err != nil {
			return nil, errors.Wrap(err, "encode webp")
		}
		return buf.Bytes(), nil

	case images.FormatPNG, images.FormatJPEG:
		ext := gocv.PNGFileExt
		params := []int{}
		if format == images.FormatJPEG {
			ext = gocv.JPEGFileExt
			params = []int{int(gocv.IMWriteJpegQuality), SnapshotQuality}
		}
		buf, err := gocv.IMEncodeWithParams(ext, frame, params)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s", format)
		}
		defer buf.Close()
		return bytes.Clone(buf.GetBytes()), nil
	}

	return nil, errors.Errorf("unsupported snapshot format %q", format)
}

// SaveSnapshot writes frame to path; the format follows the file extension.
func SaveSnapshot(path string, frame gocv.Mat) error {
	format, err := images.FormatFromPath(path)
	if err != nil {
		return err
	}
	data, err := EncodeSnapshot(frame, format)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "write snapshot %s", path)
}
