package biometric

import "context"

const irisTemplateBits = 512

// HeuristicIrisMatcher is the iris capability fallback. It thresholds the
// capture bytes into fixed-size bit templates per eye (left eye from the
// first half of the capture, right eye from the second) and compares by
// normalized Hamming distance, mirroring how real iris codes are matched.
type HeuristicIrisMatcher struct{}

// NewHeuristicIrisMatcher builds the bit-template iris matcher.
func NewHeuristicIrisMatcher() *HeuristicIrisMatcher {
	return &HeuristicIrisMatcher{}
}

// Encode derives per-eye bit templates from the capture bytes.
func (m *HeuristicIrisMatcher) Encode(_ context.Context, image []byte) (IrisTemplate, error) {
	if len(image) < 2 {
		return IrisTemplate{}, ErrNoFeatures
	}
	half := len(image) / 2
	return IrisTemplate{
		Left:  bitTemplate(image[:half]),
		Right: bitTemplate(image[half:]),
	}, nil
}

// Compare returns one normalized Hamming distance per eye present on both sides.
func (m *HeuristicIrisMatcher) Compare(_ context.Context, stored, live IrisTemplate) ([]EyeComparison, error) {
	if stored.Empty() || live.Empty() {
		return nil, ErrNoFeatures
	}

	var results []EyeComparison
	if len(stored.Left) > 0 && len(live.Left) > 0 {
		d := hammingDistance(stored.Left, live.Left)
		results = append(results, EyeComparison{Side: LeftEye, Distance: d, Similarity: 1 - d})
	}
	if len(stored.Right) > 0 && len(live.Right) > 0 {
		d := hammingDistance(stored.Right, live.Right)
		results = append(results, EyeComparison{Side: RightEye, Distance: d, Similarity: 1 - d})
	}
	if len(results) == 0 {
		return nil, ErrNoFeatures
	}
	return results, nil
}

// bitTemplate folds the sample into a fixed-size bit string: each template
// bit is set when the byte it maps to is above the sample mean.
func bitTemplate(sample []byte) Template {
	var sum int
	for _, b := range sample {
		sum += int(b)
	}
	mean := byte(sum / len(sample))

	bits := make([]byte, irisTemplateBits/8)
	for i := 0; i < irisTemplateBits; i++ {
		b := sample[i*len(sample)/irisTemplateBits]
		if b > mean {
			bits[i/8] |= 1 << (i % 8)
		}
	}
	return bits
}

func hammingDistance(a, b Template) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 1
	}
	diff := 0
	for i := 0; i < n; i++ {
		diff += popcount(a[i] ^ b[i])
	}
	return float64(diff) / float64(n*8)
}

func popcount(b byte) int {
	count := 0
	for b != 0 {
		count += int(b & 1)
		b >>= 1
	}
	return count
}
