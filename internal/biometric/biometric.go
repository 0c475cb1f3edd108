// Package biometric defines the contracts the verification core consumes
// for face, iris and document processing. The pixel-level algorithms live
// behind these interfaces; the core only sees templates and scores.
package biometric

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNoFeatures indicates the capture held too little signal to derive a template.
var ErrNoFeatures = errors.New("no usable features in capture")

// Template is an opaque biometric reference blob. The core stores and
// forwards templates without interpreting them.
type Template []byte

// Comparison is the outcome of matching a live capture against a stored template.
type Comparison struct {
	Confidence float64 `json:"confidence"`
	Similarity float64 `json:"similarity"`
	Distance   float64 `json:"distance"`
}

// FaceMatcher encodes face captures and compares them against stored templates.
type FaceMatcher interface {
	Encode(ctx context.Context, image []byte) (Template, error)
	Compare(ctx context.Context, stored, live Template) (Comparison, error)
}

// EyeSide names one eye of an iris capture.
type EyeSide string

const (
	LeftEye  EyeSide = "left_eye"
	RightEye EyeSide = "right_eye"
)

// IrisTemplate carries per-eye templates. Either side may be empty when an
// eye was not captured.
type IrisTemplate struct {
	Left  Template `json:"left"`
	Right Template `json:"right"`
}

// Empty reports whether no eye holds a template.
func (t IrisTemplate) Empty() bool {
	return len(t.Left) == 0 && len(t.Right) == 0
}

// Marshal serializes the template pair for opaque storage in the directory.
func (t IrisTemplate) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

// UnmarshalIrisTemplate restores a stored template pair.
func UnmarshalIrisTemplate(raw []byte) (IrisTemplate, error) {
	var t IrisTemplate
	if err := json.Unmarshal(raw, &t); err != nil {
		return IrisTemplate{}, err
	}
	return t, nil
}

// EyeComparison is the match outcome for a single eye.
type EyeComparison struct {
	Side       EyeSide `json:"side"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

// IrisMatcher encodes iris captures and compares them per eye. Compare
// returns one result per eye that has both a stored and a live template.
type IrisMatcher interface {
	Encode(ctx context.Context, image []byte) (IrisTemplate, error)
	Compare(ctx context.Context, stored, live IrisTemplate) ([]EyeComparison, error)
}

// ExtractedID is the result of reading a voter ID card.
type ExtractedID struct {
	VoterID    string  `json:"voter_id"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// DocumentReader extracts a voter identifier from an ID card image.
type DocumentReader interface {
	ExtractID(ctx context.Context, image []byte) (ExtractedID, error)
}
