package yolods

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// writePNG writes a white width x height PNG to path.
func writePNG(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

// writeText writes the lines to path, each terminated by a newline.
func writeText(t *testing.T, path string, lines ...string) {
	t.Helper()
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// makeDataset creates <root>/images and <root>/labels and returns their paths.
func makeDataset(t *testing.T, root string) (imagesDir, labelsDir string) {
	t.Helper()
	imagesDir = filepath.Join(root, ImagesDirName)
	labelsDir = filepath.Join(root, LabelsDirName)
	require.NoError(t, os.MkdirAll(imagesDir, 0755))
	require.NoError(t, os.MkdirAll(labelsDir, 0755))
	return imagesDir, labelsDir
}
