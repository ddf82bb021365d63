package skin

import "context"

// SampleSource provides raw tactile samples, one value per sensor in
// the range [RawMin, RawMax]. Implementations return the latest
// complete reading and must not block past ctx.
type SampleSource interface {
	ReadSamples(ctx context.Context) ([]float64, error)
}
