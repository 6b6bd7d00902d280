package yolods

// Draws the boxes of a label file onto its image for visual inspection.

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/sensorable/yolods/logger"
)

// PreviewOptions configures RenderPreview.
type PreviewOptions struct {
	LineWidth   int // Box outline width in pixels. Defaults to 2.
	JPEGQuality int // Used for .jpg outputs. Defaults to 90.
	// Longer side of the output image in pixels, zero keeps the source size.
	MaxSide int
}

// palette holds the outline colours, indexed by class id modulo its length.
var palette = []color.NRGBA{
	{R: 0xe6, G: 0x19, B: 0x4b, A: 0xff},
	{R: 0x3c, G: 0xb4, B: 0x4b, A: 0xff},
	{R: 0xff, G: 0xe1, B: 0x19, A: 0xff},
	{R: 0x43, G: 0x63, B: 0xd8, A: 0xff},
	{R: 0xf5, G: 0x82, B: 0x31, A: 0xff},
	{R: 0x91, G: 0x1e, B: 0xb4, A: 0xff},
	{R: 0x42, G: 0xd4, B: 0xf4, A: 0xff},
	{R: 0xf0, G: 0x32, B: 0xe6, A: 0xff},
}

// RenderPreview draws the boxes from the label file at labelPath onto the image at imagePath and
// saves the result to outPath (PNG or JPEG by extension). Invalid label lines are logged and
// skipped.
//
// Returns the number of boxes drawn.
func RenderPreview(imagePath, labelPath, outPath string, opts PreviewOptions) (int, error) {
	if opts.LineWidth <= 0 {
		opts.LineWidth = 2
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 90
	}

	src, _, err := loadImage(imagePath)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to decode %q: %v", ErrIO, imagePath, err)
	}
	records, bad, err := ReadLabelFile(labelPath)
	if err != nil {
		return 0, err
	}
	for _, le := range bad {
		logger.S().Warnf("Skipping %q %v", labelPath, le)
	}

	var img image.Image = src
	if opts.MaxSide > 0 {
		img = resizeImage(src, opts.MaxSide, 0, imaging.Box, imaging.Linear)
	}
	canvas := imaging.Clone(img)
	bounds := canvas.Bounds()

	drawn := 0
	for _, r := range records {
		box, err := NormalizedToPixel(r, bounds.Dx(), bounds.Dy())
		if err != nil {
			return drawn, err
		}
		drawRect(canvas, box, palette[r.ClassID%len(palette)], opts.LineWidth)
		drawn++
	}

	if err := saveImage(outPath, canvas, opts.JPEGQuality); err != nil {
		return drawn, fmt.Errorf("%w: failed to write %q: %v", ErrIO, outPath, err)
	}
	return drawn, nil
}

// drawRect draws the outline of box onto img, clipped to the image bounds. The outline is drawn
// inside the box.
func drawRect(img *image.NRGBA, box PixelBox, c color.NRGBA, width int) {
	r := image.Rect(int(math.Round(box.X1)), int(math.Round(box.Y1)),
		int(math.Round(box.X2)), int(math.Round(box.Y2)))
	for i := 0; i < width && r.Dx() > 0 && r.Dy() > 0; i++ {
		fill(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), c)
		fill(img, image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), c)
		fill(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y), c)
		fill(img, image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), c)
		r = r.Inset(1)
	}
}

// fill sets all pixels of r within the image bounds to c.
func fill(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}
