package portrait

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

// Canvas dimensions of the normalized portrait.
const (
	CanvasWidth  = 300
	CanvasHeight = 400
)

// Portrait margins relative to the detected face box. Vertical is larger so
// the crop takes in forehead, chin, and hair.
const (
	marginXRatio = 0.3
	marginYRatio = 0.4
)

// paddedRegion expands face by the portrait margins and clamps each edge
// independently to bounds. Near image borders this yields an off-center crop,
// which is accepted behavior.
func paddedRegion(face, bounds image.Rectangle) image.Rectangle {
	marginX := int(float64(face.Dx()) * marginXRatio)
	marginY := int(float64(face.Dy()) * marginYRatio)

	expanded := image.Rect(
		face.Min.X-marginX,
		face.Min.Y-marginY,
		face.Max.X+marginX,
		face.Max.Y+marginY,
	)
	return expanded.Intersect(bounds)
}

// fitToCanvas scales (w, h) uniformly to fit inside the canvas. Wider crops
// fit the canvas width, taller crops the height; the face is never stretched
// by separate axis factors.
func fitToCanvas(w, h int) (int, int) {
	aspect := float64(w) / float64(h)
	targetAspect := float64(CanvasWidth) / float64(CanvasHeight)

	var newW, newH int
	if aspect > targetAspect {
		newW = CanvasWidth
		newH = int(float64(CanvasWidth) / aspect)
	} else {
		newH = CanvasHeight
		newW = int(float64(CanvasHeight) * aspect)
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	return newW, newH
}

// Normalize crops the padded face region out of img and composites it,
// aspect-preserved and cubic-resampled, onto the center of a white
// CanvasWidth×CanvasHeight canvas. The source Mat is read, never written.
// The caller owns the returned canvas and must Close it.
func Normalize(img gocv.Mat, face image.Rectangle) (gocv.Mat, error) {
	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	crop := paddedRegion(face, bounds)
	if crop.Dx() < 1 || crop.Dy() < 1 {
		return gocv.Mat{}, errors.New("face region does not overlap the image")
	}

	roi := img.Region(crop)
	defer roi.Close()

	newW, newH := fitToCanvas(crop.Dx(), crop.Dy())
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(roi, &resized, image.Pt(newW, newH), 0, 0, gocv.InterpolationCubic)

	canvas := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(255, 255, 255, 0),
		CanvasHeight,
		CanvasWidth,
		gocv.MatTypeCV8UC3,
	)

	offsetX := (CanvasWidth - newW) / 2
	offsetY := (CanvasHeight - newH) / 2
	target := canvas.Region(image.Rect(offsetX, offsetY, offsetX+newW, offsetY+newH))
	resized.CopyTo(&target)
	target.Close()

	return canvas, nil
}
