// Package portrait extracts a normalized portrait photo from an uploaded
// identity-document image: decode, locate the principal face, crop with
// portrait margins, and re-encode as a fixed-size JPEG.
package portrait

import (
	"context"

	"go.uber.org/zap"
)

// OutcomeCode enumerates the terminal states of an extraction. The set is
// closed: every Extract call ends in exactly one of these.
type OutcomeCode int

const (
	// OutcomeDecodeFailed means the payload was not a decodable image.
	OutcomeDecodeFailed OutcomeCode = iota
	// OutcomeNoFaceFound means the image decoded but held no detectable face.
	OutcomeNoFaceFound
	// OutcomeSuccess means a portrait was extracted.
	OutcomeSuccess
	// OutcomeInternalFault means an unexpected processing failure occurred.
	OutcomeInternalFault
)

// String returns the stable machine-readable name of the code.
func (c OutcomeCode) String() string {
	switch c {
	case OutcomeDecodeFailed:
		return "decode_failed"
	case OutcomeNoFaceFound:
		return "no_face_found"
	case OutcomeSuccess:
		return "success"
	default:
		return "internal_fault"
	}
}

// Outcome is the result of one extraction. PortraitBase64, Width, and Height
// are set only for OutcomeSuccess; Err only for OutcomeDecodeFailed and
// OutcomeInternalFault.
type Outcome struct {
	Code           OutcomeCode
	PortraitBase64 string
	Width          int
	Height         int
	Err            error
}

// Pipeline composes decode, detection, normalization, and encoding into a
// single deterministic pass. Same bytes in, same outcome out; nothing is
// retried and no state survives the call.
type Pipeline struct {
	locator Locator
	logger  *zap.Logger
}

// NewPipeline builds a pipeline around the given face locator.
func NewPipeline(locator Locator, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		locator: locator,
		logger:  logger.Named("portrait_pipeline"),
	}
}

// Extract runs the full pipeline over one uploaded payload. All intermediate
// buffers are released on every exit path.
func (p *Pipeline) Extract(_ context.Context, data []byte) Outcome {
	img, err := decodeImage(data)
	if err != nil {
		return Outcome{Code: OutcomeDecodeFailed, Err: err}
	}
	defer img.Close()

	face, ok := p.locator.Locate(img)
	if !ok {
		return Outcome{Code: OutcomeNoFaceFound}
	}

	canvas, err := Normalize(img, face)
	if err != nil {
		p.logger.Error("portrait normalization failed", zap.Error(err))
		return Outcome{Code: OutcomeInternalFault, Err: err}
	}
	defer canvas.Close()

	encoded, err := encodePortrait(canvas)
	if err != nil {
		p.logger.Error("portrait encoding failed", zap.Error(err))
		return Outcome{Code: OutcomeInternalFault, Err: err}
	}

	return Outcome{
		Code:           OutcomeSuccess,
		PortraitBase64: encoded,
		Width:          canvas.Cols(),
		Height:         canvas.Rows(),
	}
}
