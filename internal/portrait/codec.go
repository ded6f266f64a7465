package portrait

import (
	"encoding/base64"
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

const jpegQuality = 95

// ErrDecode marks payloads that could not be decoded as an image. Callers
// distinguish it from processing faults via errors.Is.
var ErrDecode = errors.New("image bytes could not be decoded")

// decodeImage interprets compressed image bytes (JPEG, PNG, ...) as a
// 3-channel BGR buffer. The caller owns the returned Mat.
func decodeImage(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.Mat{}, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, fmt.Errorf("%w: unsupported or corrupt image data", ErrDecode)
	}
	return img, nil
}

// encodePortrait compresses the canvas as JPEG at quality 95 and returns it
// base64-encoded for transport inside a JSON payload. The encoder consumes
// BGR Mats and emits display-ordered output itself, so no explicit channel
// swap precedes it.
func encodePortrait(canvas gocv.Mat) (string, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, canvas, []int{gocv.IMWriteJpegQuality, jpegQuality})
	if err != nil {
		return "", fmt.Errorf("jpeg encode: %w", err)
	}
	defer buf.Close()
	return base64.StdEncoding.EncodeToString(buf.GetBytes()), nil
}
