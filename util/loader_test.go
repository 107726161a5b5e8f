package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameNumber(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"frame-12.jpg", 12},
		{"shot_0007.png", 7},
		{"/tmp/run/frame-3.jpeg", 3},
		{"cover.png", -1},
		{"12a.png", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FrameNumber(tt.name))
		})
	}
}

func TestLoadDirectoryImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame-10.jpg", "frame-2.jpg", "cover.png", "notes.txt", "frame-1.PNG"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "frame-0.jpg"), 0o755))

	images, err := LoadDirectoryImageFiles(dir)
	require.NoError(t, err)
	require.Len(t, images, 4)

	var names []string
	for _, image := range images {
		names = append(names, filepath.Base(image.Path))
		assert.Equal(t, filepath.Base(image.Path), string(image.Data))
	}
	assert.Equal(t, []string{"frame-1.PNG", "frame-2.jpg", "frame-10.jpg", "cover.png"}, names)
}

func TestLoadDirectoryImagesMissing(t *testing.T) {
	_, err := LoadDirectoryImageFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
