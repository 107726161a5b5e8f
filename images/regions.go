package images

import (
	"image"

	"gocv.io/x/gocv"
)

// Column layout of the stats matrix produced by gocv.ConnectedComponentsWithStats.
const (
	statLeft = iota
	statTop
	statWidth
	statHeight
	statArea
)

// Region is one connected foreground blob of a motion mask.
type Region struct {
	// Area is the number of foreground pixels in the blob.
	Area int
	// CentroidX is the first-moment x-coordinate, relative to the mask.
	CentroidX float64
	// CentroidY is the first-moment y-coordinate, relative to the mask.
	CentroidY float64
	// Bounds is the bounding box of the blob, relative to the mask.
	Bounds image.Rectangle
}

// Translate returns the region shifted by offset, used to map ROI coordinates back to the
// full frame.
func (r Region) Translate(offset image.Point) Region {
	r.CentroidX += float64(offset.X)
	r.CentroidY += float64(offset.Y)
	r.Bounds = r.Bounds.Add(offset)
	return r
}

// ExtractRegions enumerates the 8-connected foreground blobs of a binary mask.
//
// Blobs whose area is at or below minArea are discarded, as are degenerate blobs with no
// pixels. The returned slice is in label order, which callers must not rely on.
//
// Arguments:
//   - mask: A binary CV_8UC1 mask (non-zero is foreground).
//   - minArea: The exclusive lower bound on blob area, in pixels.
//
// Returns:
//   - []Region: The surviving blobs.
func ExtractRegions(mask gocv.Mat, minArea float64) []Region {
	if mask.Empty() {
		return nil
	}

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStats(mask, &labels, &stats, &centroids)

	var regions []Region
	// Label 0 is the background.
	for label := 1; label < n; label++ {
		area := int(stats.GetIntAt(label, statArea))
		if area == 0 || float64(area) <= minArea {
			continue
		}
		left := int(stats.GetIntAt(label, statLeft))
		top := int(stats.GetIntAt(label, statTop))
		regions = append(regions, Region{
			Area:      area,
			CentroidX: centroids.GetDoubleAt(label, 0),
			CentroidY: centroids.GetDoubleAt(label, 1),
			Bounds: image.Rect(left, top,
				left+int(stats.GetIntAt(label, statWidth)),
				top+int(stats.GetIntAt(label, statHeight))),
		})
	}

	return regions
}
