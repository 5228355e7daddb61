// CLAUDE:SUMMARY Pads two screenshots onto opaque white canvases of identical size before pixel comparison.
package imgdiff

import (
	"image"

	"golang.org/x/image/draw"
)

// Reconcile returns two images with identical dimensions: the maximum width
// and the maximum height of the inputs. Each input is copied to the top-left
// corner of an opaque white canvas, so padded margins read as white page
// background rather than transparency. Inputs that already share a size are
// returned untouched.
func Reconcile(a, b image.Image) (image.Image, image.Image) {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() == bb.Dx() && ab.Dy() == bb.Dy() {
		return a, b
	}
	w := max(ab.Dx(), bb.Dx())
	h := max(ab.Dy(), bb.Dy())
	return fit(a, w, h), fit(b, w, h)
}

// fit places src at (0,0) on a w×h white canvas. An image that already covers
// exactly that rectangle is returned as-is.
func fit(src image.Image, w, h int) image.Image {
	target := image.Rect(0, 0, w, h)
	if src.Bounds() == target {
		return src
	}
	dst := image.NewRGBA(target)
	draw.Draw(dst, target, image.White, image.Point{}, draw.Src)
	draw.Copy(dst, image.Point{}, src, src.Bounds(), draw.Src, nil)
	return dst
}
