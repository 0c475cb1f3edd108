package verification

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/votegate/votegate/internal/biometric"
)

func testThresholds() Thresholds {
	return Thresholds{Face: 0.94, Liveness: 0.30, IrisEye: 0.30, IrisConf: 0.85}
}

// stubFaceMatcher returns a fixed comparison score, letting tests pin the
// decision exactly at or around a threshold.
type stubFaceMatcher struct {
	confidence float64
	err        error
}

func (m stubFaceMatcher) Encode(_ context.Context, image []byte) (biometric.Template, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(image) == 0 {
		return nil, biometric.ErrNoFeatures
	}
	return biometric.Template("stub-template"), nil
}

func (m stubFaceMatcher) Compare(_ context.Context, _, _ biometric.Template) (biometric.Comparison, error) {
	if m.err != nil {
		return biometric.Comparison{}, m.err
	}
	return biometric.Comparison{
		Confidence: m.confidence,
		Similarity: m.confidence,
		Distance:   1 - m.confidence,
	}, nil
}

type stubIrisMatcher struct {
	distance float64
}

func (m stubIrisMatcher) Encode(_ context.Context, image []byte) (biometric.IrisTemplate, error) {
	if len(image) == 0 {
		return biometric.IrisTemplate{}, biometric.ErrNoFeatures
	}
	return biometric.IrisTemplate{Left: []byte{0x01}, Right: []byte{0x02}}, nil
}

func (m stubIrisMatcher) Compare(_ context.Context, _, _ biometric.IrisTemplate) ([]biometric.EyeComparison, error) {
	return []biometric.EyeComparison{
		{Side: biometric.LeftEye, Distance: m.distance, Similarity: 1 - m.distance},
		{Side: biometric.RightEye, Distance: m.distance + 0.05, Similarity: 1 - m.distance - 0.05},
	}, nil
}

func TestLivenessScore(t *testing.T) {
	cases := []struct {
		name string
		data LivenessData
		want float64
	}{
		{"client score only", LivenessData{ClientScore: 0.4}, 0.4},
		{"head movement bonus", LivenessData{ClientScore: 0.4, HeadMovement: true}, 0.55},
		{"blinks capped at three", LivenessData{ClientScore: 0.4, BlinkCount: 5}, 0.55},
		{"all signals", LivenessData{ClientScore: 0.6, HeadMovement: true, BlinkCount: 2}, 0.85},
		{"saturates at one", LivenessData{ClientScore: 0.95, HeadMovement: true, BlinkCount: 3}, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.data.Score()
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("Score() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluateFaceFirstEnrollment(t *testing.T) {
	policy := NewPolicy(biometric.NewHeuristicFaceMatcher(), biometric.NewHeuristicIrisMatcher(), biometric.NewTextDocumentReader(), testThresholds())

	capture := []byte("face-capture-bytes-for-enrollment-with-enough-entropy")
	decision, err := policy.EvaluateFace(context.Background(), nil, capture, LivenessData{ClientScore: 0.4})
	if err != nil {
		t.Fatalf("EvaluateFace: %v", err)
	}
	if !decision.Enrolled {
		t.Fatal("expected first capture to enroll a template")
	}
	if len(decision.NewTemplate) == 0 {
		t.Fatal("expected a new template to be returned")
	}
	// A capture compared against itself scores full confidence.
	if decision.Confidence < 0.999 {
		t.Fatalf("self-match confidence = %v, want ~1.0", decision.Confidence)
	}
	if !decision.Pass {
		t.Fatal("expected enrollment capture with passing liveness to pass")
	}
}

func TestEvaluateFaceThresholdBoundary(t *testing.T) {
	th := testThresholds()

	t.Run("exactly at threshold passes", func(t *testing.T) {
		policy := NewPolicy(stubFaceMatcher{confidence: th.Face}, stubIrisMatcher{}, biometric.NewTextDocumentReader(), th)
		decision, err := policy.EvaluateFace(context.Background(), biometric.Template("stored"), []byte("capture"), LivenessData{ClientScore: th.Liveness})
		if err != nil {
			t.Fatalf("EvaluateFace: %v", err)
		}
		if !decision.Pass {
			t.Fatalf("confidence %v at threshold %v should pass", decision.Confidence, th.Face)
		}
	})

	t.Run("just below threshold fails", func(t *testing.T) {
		policy := NewPolicy(stubFaceMatcher{confidence: th.Face - 0.001}, stubIrisMatcher{}, biometric.NewTextDocumentReader(), th)
		decision, err := policy.EvaluateFace(context.Background(), biometric.Template("stored"), []byte("capture"), LivenessData{ClientScore: 0.9})
		if err != nil {
			t.Fatalf("EvaluateFace: %v", err)
		}
		if decision.Pass {
			t.Fatalf("confidence %v below threshold %v should fail", decision.Confidence, th.Face)
		}
	})
}

func TestEvaluateFaceLivenessGate(t *testing.T) {
	th := testThresholds()
	policy := NewPolicy(stubFaceMatcher{confidence: 1.0}, stubIrisMatcher{}, biometric.NewTextDocumentReader(), th)

	decision, err := policy.EvaluateFace(context.Background(), biometric.Template("stored"), []byte("capture"), LivenessData{ClientScore: 0.1})
	if err != nil {
		t.Fatalf("EvaluateFace: %v", err)
	}
	if decision.Pass {
		t.Fatal("perfect match with failed liveness must not pass")
	}
}

func TestEvaluateFaceQualityIsNotGating(t *testing.T) {
	th := testThresholds()
	policy := NewPolicy(stubFaceMatcher{confidence: 1.0}, stubIrisMatcher{}, biometric.NewTextDocumentReader(), th)

	// A one-byte capture scores near-zero on quality.
	decision, err := policy.EvaluateFace(context.Background(), biometric.Template("stored"), []byte{0x7f}, LivenessData{ClientScore: 0.9})
	if err != nil {
		t.Fatalf("EvaluateFace: %v", err)
	}
	if decision.QualityScore > 0.5 {
		t.Fatalf("expected low quality score, got %v", decision.QualityScore)
	}
	if !decision.Pass {
		t.Fatal("low quality alone must not fail a confident, live capture")
	}
}

func TestEvaluateFaceUpstreamFailure(t *testing.T) {
	matcherErr := errors.New("matcher backend unavailable")
	policy := NewPolicy(stubFaceMatcher{err: matcherErr}, stubIrisMatcher{}, biometric.NewTextDocumentReader(), testThresholds())

	_, err := policy.EvaluateFace(context.Background(), biometric.Template("stored"), []byte("capture"), LivenessData{ClientScore: 0.9})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if !errors.Is(err, matcherErr) {
		t.Fatal("UpstreamError must wrap the matcher error")
	}
}

func TestEvaluateIrisFirstEnrollment(t *testing.T) {
	policy := NewPolicy(biometric.NewHeuristicFaceMatcher(), biometric.NewHeuristicIrisMatcher(), biometric.NewTextDocumentReader(), testThresholds())

	decision, err := policy.EvaluateIris(context.Background(), nil, []byte("iris-capture-with-enough-bytes-to-encode"))
	if err != nil {
		t.Fatalf("EvaluateIris: %v", err)
	}
	if !decision.Pass || !decision.Enrolled {
		t.Fatalf("expected provisional enrollment pass, got pass=%v enrolled=%v", decision.Pass, decision.Enrolled)
	}
	if decision.Confidence != 0.92 {
		t.Fatalf("provisional confidence = %v, want 0.92", decision.Confidence)
	}
	if len(decision.NewTemplate) == 0 {
		t.Fatal("expected a new iris template")
	}
	if len(decision.Eyes) != 2 {
		t.Fatalf("expected two eye results, got %d", len(decision.Eyes))
	}
}

func TestEvaluateIrisMatch(t *testing.T) {
	matcher := biometric.NewHeuristicIrisMatcher()
	policy := NewPolicy(biometric.NewHeuristicFaceMatcher(), matcher, biometric.NewTextDocumentReader(), testThresholds())

	capture := []byte("iris-capture-deterministic-sample-bytes-0123456789")
	tpl, err := matcher.Encode(context.Background(), capture)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	stored, err := tpl.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	decision, err := policy.EvaluateIris(context.Background(), stored, capture)
	if err != nil {
		t.Fatalf("EvaluateIris: %v", err)
	}
	if !decision.Pass {
		t.Fatalf("identical capture should pass, got %+v", decision)
	}
	if decision.Enrolled {
		t.Fatal("matching against a stored template must not re-enroll")
	}
	for _, eye := range decision.Eyes {
		if !eye.Verified || eye.Distance != 0 {
			t.Fatalf("eye %s: verified=%v distance=%v, want verified at distance 0", eye.Side, eye.Verified, eye.Distance)
		}
	}
}

func TestEvaluateIrisReject(t *testing.T) {
	policy := NewPolicy(biometric.NewHeuristicFaceMatcher(), stubIrisMatcher{distance: 0.45}, biometric.NewTextDocumentReader(), testThresholds())

	decision, err := policy.EvaluateIris(context.Background(), []byte(`{"left":"AQ==","right":"Ag=="}`), []byte("different-iris"))
	if err != nil {
		t.Fatalf("EvaluateIris: %v", err)
	}
	if decision.Pass {
		t.Fatalf("distances above the eye threshold must fail, got %+v", decision)
	}
	for _, eye := range decision.Eyes {
		if eye.Verified {
			t.Fatalf("eye %s at distance %v should not verify", eye.Side, eye.Distance)
		}
	}
}

func TestEvaluateIrisTieBreakHighestConfidence(t *testing.T) {
	// Left eye at distance 0.10 (similarity 0.90), right at 0.15 (0.85):
	// both verify, the reported confidence is the higher one.
	policy := NewPolicy(biometric.NewHeuristicFaceMatcher(), stubIrisMatcher{distance: 0.10}, biometric.NewTextDocumentReader(), testThresholds())

	decision, err := policy.EvaluateIris(context.Background(), []byte(`{"left":"AQ==","right":"Ag=="}`), []byte("iris"))
	if err != nil {
		t.Fatalf("EvaluateIris: %v", err)
	}
	if !decision.Pass {
		t.Fatalf("expected pass, got %+v", decision)
	}
	if math.Abs(decision.Confidence-0.90) > 1e-9 {
		t.Fatalf("confidence = %v, want the better eye's 0.90", decision.Confidence)
	}
}
