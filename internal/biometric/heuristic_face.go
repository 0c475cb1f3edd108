package biometric

import (
	"context"
	"encoding/json"
	"math"
)

const faceHistogramBins = 256

// HeuristicFaceMatcher is the capability fallback used when no precise
// matcher backend is configured: it derives a normalized byte histogram from
// the capture and compares templates by cosine similarity. Deterministic,
// dependency-free and adequate for development and tests; a production
// deployment plugs a real matcher behind the same interface.
type HeuristicFaceMatcher struct{}

// NewHeuristicFaceMatcher builds the histogram-based face matcher.
func NewHeuristicFaceMatcher() *HeuristicFaceMatcher {
	return &HeuristicFaceMatcher{}
}

// Encode produces a normalized histogram template from the capture bytes.
func (m *HeuristicFaceMatcher) Encode(_ context.Context, image []byte) (Template, error) {
	if len(image) == 0 {
		return nil, ErrNoFeatures
	}

	hist := make([]float64, faceHistogramBins)
	for _, b := range image {
		hist[b]++
	}
	total := float64(len(image))
	for i := range hist {
		hist[i] /= total
	}

	raw, err := json.Marshal(hist)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Compare scores two templates by cosine similarity. Confidence equals the
// similarity; callers apply their own pass thresholds.
func (m *HeuristicFaceMatcher) Compare(_ context.Context, stored, live Template) (Comparison, error) {
	a, err := decodeHistogram(stored)
	if err != nil {
		return Comparison{}, err
	}
	b, err := decodeHistogram(live)
	if err != nil {
		return Comparison{}, err
	}

	similarity := cosineSimilarity(a, b)
	return Comparison{
		Confidence: similarity,
		Similarity: similarity,
		Distance:   1 - similarity,
	}, nil
}

func decodeHistogram(t Template) ([]float64, error) {
	if len(t) == 0 {
		return nil, ErrNoFeatures
	}
	var hist []float64
	if err := json.Unmarshal(t, &hist); err != nil {
		return nil, err
	}
	if len(hist) == 0 {
		return nil, ErrNoFeatures
	}
	return hist, nil
}

func cosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	sim := dot / denom
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
