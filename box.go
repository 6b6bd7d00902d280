package yolods

import (
	"fmt"
	"math"
)

// PixelBox is an axis-aligned box in absolute pixel offsets from the top-left image corner.
type PixelBox struct {
	X1, Y1, X2, Y2 float64
}

// PixelBoxFromCenter constructs a PixelBox from its centre and extent.
func PixelBoxFromCenter(cx, cy, width, height float64) PixelBox {
	return PixelBox{
		X1: cx - width/2,
		Y1: cy - height/2,
		X2: cx + width/2,
		Y2: cy + height/2,
	}
}

// Width of the box.
func (b PixelBox) Width() float64 {
	return b.X2 - b.X1
}

// Height of the box.
func (b PixelBox) Height() float64 {
	return b.Y2 - b.Y1
}

// Center returns the centre point of the box.
func (b PixelBox) Center() (x, y float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// canonical returns b with the corners ordered so that X1 <= X2 and Y1 <= Y2.
func (b PixelBox) canonical() PixelBox {
	return PixelBox{
		X1: math.Min(b.X1, b.X2),
		Y1: math.Min(b.Y1, b.Y2),
		X2: math.Max(b.X1, b.X2),
		Y2: math.Max(b.Y1, b.Y2),
	}
}

// PixelToNormalized converts a pixel-space box to a Record for an image of the given size.
//
// The box is clipped to the image bounds first. A box without any area inside the image is an
// ErrRange error.
func PixelToNormalized(classID int, box PixelBox, imageWidth, imageHeight int) (Record, error) {
	if imageWidth <= 0 || imageHeight <= 0 {
		return Record{}, fmt.Errorf("%w: %dx%d", ErrDimension, imageWidth, imageHeight)
	}
	if classID < 0 {
		return Record{}, fmt.Errorf("%w: negative class id %d", ErrRange, classID)
	}

	w, h := float64(imageWidth), float64(imageHeight)
	b := box.canonical()
	b.X1 = math.Max(b.X1, 0)
	b.Y1 = math.Max(b.Y1, 0)
	b.X2 = math.Min(b.X2, w)
	b.Y2 = math.Min(b.Y2, h)
	// Written so that NaN coordinates fail as well.
	if !(b.Width() > 0) || !(b.Height() > 0) {
		return Record{}, fmt.Errorf("%w: box %v does not overlap the %dx%d image", ErrRange, box,
			imageWidth, imageHeight)
	}

	cx, cy := b.Center()
	return Record{
		ClassID: classID,
		XCenter: cx / w,
		YCenter: cy / h,
		Width:   b.Width() / w,
		Height:  b.Height() / h,
	}, nil
}

// NormalizedToPixel converts r to a pixel-space box for an image of the given size.
func NormalizedToPixel(r Record, imageWidth, imageHeight int) (PixelBox, error) {
	if imageWidth <= 0 || imageHeight <= 0 {
		return PixelBox{}, fmt.Errorf("%w: %dx%d", ErrDimension, imageWidth, imageHeight)
	}

	w, h := float64(imageWidth), float64(imageHeight)
	return PixelBoxFromCenter(r.XCenter*w, r.YCenter*h, r.Width*w, r.Height*h), nil
}
