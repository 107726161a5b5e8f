package capture

import (
	"github.com/nvr-ai/galton-goalie/util"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DirectorySource replays a directory of numbered still images as a stream.
type DirectorySource struct {
	files []util.ImageFile
	next  int
	loop  bool
}

// OpenDirectory loads every image in dir, ordered by frame number. With loop set the
// sequence restarts instead of ending.
func OpenDirectory(dir string, loop bool) (*DirectorySource, error) {
	files, err := util.LoadDirectoryImageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no images in %s", dir)
	}
	return &DirectorySource{files: files, loop: loop}, nil
}

// Len returns the number of frames in the directory.
func (s *DirectorySource) Len() int {
	return len(s.files)
}

// Read decodes the next image into dst.
func (s *DirectorySource) Read(dst *gocv.Mat) error {
	if s.next >= len(s.files) {
		if !s.loop || len(s.files) == 0 {
			return ErrEndOfStream
		}
		s.next = 0
	}
	file := s.files[s.next]
	s.next++

	img, err := gocv.IMDecode(file.Data, gocv.IMReadColor)
	if err != nil {
		return errors.Wrapf(err, "decode %s", file.Path)
	}
	defer img.Close()
	if img.Empty() {
		return errors.Errorf("decode %s: empty image", file.Path)
	}

	img.CopyTo(dst)
	return nil
}

// Close drops the loaded images.
func (s *DirectorySource) Close() error {
	s.files = nil
	return nil
}
