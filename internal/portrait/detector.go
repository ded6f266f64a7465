package portrait

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// Detection tuning. The cascade walks an image pyramid with a 1.1 scale step
// and accepts a region only when at least 5 overlapping windows agree.
const (
	claheClipLimit  = 2.0
	claheTileSize   = 8
	detectScaleStep = 1.1
	minNeighbors    = 5
	minFaceSize     = 30
)

// fallbackCascadePaths are tried when the configured cascade file is absent.
var fallbackCascadePaths = []string{
	"haarcascade_frontalface_default.xml",
	"/usr/local/share/opencv4/haarcascades/haarcascade_frontalface_default.xml",
	"/usr/share/opencv4/haarcascades/haarcascade_frontalface_default.xml",
	"/opt/homebrew/share/opencv4/haarcascades/haarcascade_frontalface_default.xml",
}

// Locator finds the principal face in a color image. The returned rectangle
// is in source-image pixel coordinates; ok is false when no face was found,
// which is a normal outcome rather than an error.
type Locator interface {
	Locate(img gocv.Mat) (image.Rectangle, bool)
}

// Detector wraps a Haar frontal-face cascade classifier. The classifier is
// loaded once and shared across requests; detectMultiScale is not reentrant,
// so inference is serialized behind a mutex.
type Detector struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
}

// LoadDetector loads the frontal-face cascade from path, falling back to the
// usual system install locations when path does not resolve.
func LoadDetector(path string) (*Detector, error) {
	candidates := make([]string, 0, len(fallbackCascadePaths)+1)
	if path != "" {
		candidates = append(candidates, path)
	}
	candidates = append(candidates, fallbackCascadePaths...)

	classifier := gocv.NewCascadeClassifier()
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if classifier.Load(candidate) {
			return &Detector{classifier: classifier}, nil
		}
	}
	classifier.Close()
	return nil, fmt.Errorf("frontal-face cascade not found (tried %q and system locations)", path)
}

// Close releases the classifier.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.classifier.Close()
}

// Locate preprocesses img for detection and returns the largest candidate
// face. Preprocessing converts to grayscale and applies CLAHE so detection
// holds up under uneven scan lighting. When several candidates share the
// maximal area the first one enumerated by the classifier wins; that order
// is backend-dependent and callers must not rely on it.
func (d *Detector) Locate(img gocv.Mat) (image.Rectangle, bool) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	clahe := gocv.NewCLAHEWithParams(claheClipLimit, image.Pt(claheTileSize, claheTileSize))
	defer clahe.Close()

	enhanced := gocv.NewMat()
	defer enhanced.Close()
	clahe.Apply(gray, &enhanced)

	d.mu.Lock()
	faces := d.classifier.DetectMultiScaleWithParams(
		enhanced,
		detectScaleStep,
		minNeighbors,
		0,
		image.Pt(minFaceSize, minFaceSize),
		image.Point{},
	)
	d.mu.Unlock()

	if len(faces) == 0 {
		return image.Rectangle{}, false
	}
	return largestOf(faces), true
}

// largestOf picks the candidate with the greatest area. On equal areas the
// earlier candidate wins, matching the classifier's enumeration order.
func largestOf(faces []image.Rectangle) image.Rectangle {
	best := faces[0]
	bestArea := best.Dx() * best.Dy()
	for _, face := range faces[1:] {
		if area := face.Dx() * face.Dy(); area > bestArea {
			best = face
			bestArea = area
		}
	}
	return best
}
