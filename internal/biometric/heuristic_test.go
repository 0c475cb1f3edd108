package biometric

import (
	"bytes"
	"context"
	"testing"
)

func TestHeuristicFaceMatcher_SameCaptureMatches(t *testing.T) {
	m := NewHeuristicFaceMatcher()
	ctx := context.Background()

	capture := bytes.Repeat([]byte{10, 40, 90, 200, 250}, 100)
	stored, err := m.Encode(ctx, capture)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	live, _ := m.Encode(ctx, capture)

	cmp, err := m.Compare(ctx, stored, live)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if cmp.Confidence < 0.999 {
		t.Fatalf("expected near-perfect confidence for identical capture, got %v", cmp.Confidence)
	}
}

func TestHeuristicFaceMatcher_DifferentCapturesScoreLower(t *testing.T) {
	m := NewHeuristicFaceMatcher()
	ctx := context.Background()

	a, _ := m.Encode(ctx, bytes.Repeat([]byte{0, 1, 2}, 200))
	b, _ := m.Encode(ctx, bytes.Repeat([]byte{250, 251, 252}, 200))

	cmp, err := m.Compare(ctx, a, b)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if cmp.Confidence > 0.1 {
		t.Fatalf("expected low confidence for disjoint histograms, got %v", cmp.Confidence)
	}
}

func TestHeuristicFaceMatcher_EmptyCapture(t *testing.T) {
	m := NewHeuristicFaceMatcher()
	if _, err := m.Encode(context.Background(), nil); err != ErrNoFeatures {
		t.Fatalf("expected ErrNoFeatures, got %v", err)
	}
}

func TestHeuristicIrisMatcher_PerEyeResults(t *testing.T) {
	m := NewHeuristicIrisMatcher()
	ctx := context.Background()

	capture := bytes.Repeat([]byte{5, 120, 240, 33, 180}, 300)
	stored, err := m.Encode(ctx, capture)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	live, _ := m.Encode(ctx, capture)

	results, err := m.Compare(ctx, stored, live)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both eyes compared, got %d", len(results))
	}
	for _, eye := range results {
		if eye.Distance != 0 {
			t.Fatalf("expected zero distance for identical capture, %s got %v", eye.Side, eye.Distance)
		}
	}
}

func TestHeuristicIrisMatcher_MissingEye(t *testing.T) {
	m := NewHeuristicIrisMatcher()
	ctx := context.Background()

	capture := bytes.Repeat([]byte{9, 200, 70}, 200)
	stored, _ := m.Encode(ctx, capture)
	stored.Right = nil
	live, _ := m.Encode(ctx, capture)

	results, err := m.Compare(ctx, stored, live)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if len(results) != 1 || results[0].Side != LeftEye {
		t.Fatalf("expected only the left eye compared, got %+v", results)
	}
}

func TestIrisTemplate_MarshalRoundTrip(t *testing.T) {
	m := NewHeuristicIrisMatcher()
	tpl, _ := m.Encode(context.Background(), bytes.Repeat([]byte{1, 128, 255}, 100))

	raw, err := tpl.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	restored, err := UnmarshalIrisTemplate(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !bytes.Equal(restored.Left, tpl.Left) || !bytes.Equal(restored.Right, tpl.Right) {
		t.Fatal("template pair changed across storage round trip")
	}
}

func TestTextDocumentReader_StandardFormat(t *testing.T) {
	r := NewTextDocumentReader()
	card := []byte("ELECTION COMMISSION\nAsha Verma\nABC1234567\n")

	extracted, err := r.ExtractID(context.Background(), card)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if extracted.VoterID != "ABC1234567" {
		t.Fatalf("unexpected voter id: %s", extracted.VoterID)
	}
	if extracted.Name != "Asha Verma" {
		t.Fatalf("unexpected name: %q", extracted.Name)
	}
	if extracted.Confidence < 0.8 {
		t.Fatalf("expected high confidence, got %v", extracted.Confidence)
	}
}

func TestTextDocumentReader_NoID(t *testing.T) {
	r := NewTextDocumentReader()
	if _, err := r.ExtractID(context.Background(), []byte("no identifier here")); err != ErrNoVoterID {
		t.Fatalf("expected ErrNoVoterID, got %v", err)
	}
}
