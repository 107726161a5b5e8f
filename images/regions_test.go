package images

import (
	"image"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func twoBlobMask() gocv.Mat {
	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 50, 100, gocv.MatTypeCV8UC1)
	fillRect(&mask, image.Rect(10, 10, 20, 20), 255)
	fillRect(&mask, image.Rect(60, 10, 80, 30), 255)
	return mask
}

func TestExtractRegions(t *testing.T) {
	mask := twoBlobMask()
	defer mask.Close()

	t.Run("all blobs above zero", func(t *testing.T) {
		regions := ExtractRegions(mask, 0)
		require.Len(t, regions, 2)
		sort.Slice(regions, func(i, j int) bool { return regions[i].CentroidX < regions[j].CentroidX })

		assert.Equal(t, 100, regions[0].Area)
		assert.InDelta(t, 14.5, regions[0].CentroidX, 1e-9)
		assert.InDelta(t, 14.5, regions[0].CentroidY, 1e-9)
		assert.Equal(t, image.Rect(10, 10, 20, 20), regions[0].Bounds)

		assert.Equal(t, 400, regions[1].Area)
		assert.InDelta(t, 69.5, regions[1].CentroidX, 1e-9)
	})

	t.Run("area at the minimum is discarded", func(t *testing.T) {
		regions := ExtractRegions(mask, 100)
		require.Len(t, regions, 1)
		assert.Equal(t, 400, regions[0].Area)
	})

	t.Run("everything below minimum", func(t *testing.T) {
		assert.Empty(t, ExtractRegions(mask, 1000))
	})
}

func TestExtractRegionsEmpty(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()
	assert.Nil(t, ExtractRegions(empty, 0))

	blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 20, 20, gocv.MatTypeCV8UC1)
	defer blank.Close()
	assert.Empty(t, ExtractRegions(blank, 0))
}

func TestRegionTranslate(t *testing.T) {
	r := Region{Area: 4, CentroidX: 1.5, CentroidY: 2.5, Bounds: image.Rect(0, 0, 2, 2)}
	moved := r.Translate(image.Pt(100, 40))
	assert.InDelta(t, 101.5, moved.CentroidX, 1e-9)
	assert.InDelta(t, 42.5, moved.CentroidY, 1e-9)
	assert.Equal(t, image.Rect(100, 40, 102, 42), moved.Bounds)
	assert.Equal(t, 4, moved.Area)
}
