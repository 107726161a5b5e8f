package images

import (
	"crypto/md5"
	"encoding/hex"
	"image"
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// solidFrame returns a BGR frame filled with one gray level.
func solidFrame(rows, cols int, v float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), rows, cols, gocv.MatTypeCV8UC3)
}

// fillRect paints r with value v in every channel of m, pixel by pixel.
func fillRect(m *gocv.Mat, r image.Rectangle, v uint8) {
	ch := m.Channels()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			for c := 0; c < ch; c++ {
				m.SetUCharAt(y, x*ch+c, v)
			}
		}
	}
}

// checksum returns a hex MD5 of a Mat's pixel data, used to show an input frame is untouched.
func checksum(t *testing.T, mat gocv.Mat) string {
	t.Helper()
	if mat.Empty() {
		return "empty"
	}
	data, err := mat.DataPtrUint8()
	require.NoError(t, err)
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
