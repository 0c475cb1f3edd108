package biometric

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrNoVoterID indicates no identifier could be read from the card image.
var ErrNoVoterID = errors.New("could not extract voter id from document")

var (
	// Standard electoral roll format: 3 letters followed by 7 digits.
	voterIDPattern = regexp.MustCompile(`[A-Z]{3}[0-9]{7}`)
	// Looser fallbacks for cards printed in other formats.
	altVoterIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[A-Z]{2,4}[0-9]{6,8}`),
		regexp.MustCompile(`[A-Z]+[0-9]+`),
	}
	nonAlnum = regexp.MustCompile(`[^A-Z0-9 \n]`)
)

// TextDocumentReader reads voter identifiers out of pre-extracted card text.
// The OCR pipeline proper runs outside this service; what reaches the
// boundary is the recognized text, and this reader applies the roll's ID
// grammar plus an additive confidence score to it.
type TextDocumentReader struct{}

// NewTextDocumentReader builds the text-based document reader.
func NewTextDocumentReader() *TextDocumentReader {
	return &TextDocumentReader{}
}

// ExtractID finds the voter identifier and an optional holder name in the text.
func (r *TextDocumentReader) ExtractID(_ context.Context, image []byte) (ExtractedID, error) {
	if len(image) == 0 {
		return ExtractedID{}, ErrNoVoterID
	}

	text := strings.ToUpper(string(image))
	cleaned := nonAlnum.ReplaceAllString(text, "")

	voterID := voterIDPattern.FindString(cleaned)
	if voterID == "" {
		for _, pattern := range altVoterIDPatterns {
			for _, match := range pattern.FindAllString(cleaned, -1) {
				if len(match) >= 8 && len(match) <= 12 {
					voterID = match
					break
				}
			}
			if voterID != "" {
				break
			}
		}
	}
	if voterID == "" {
		return ExtractedID{}, ErrNoVoterID
	}

	name := extractName(string(image))

	return ExtractedID{
		VoterID:    voterID,
		Name:       name,
		Confidence: extractionConfidence(voterID, name, cleaned),
	}, nil
}

func extractName(text string) string {
	var best string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) <= 3 || len(line) >= 50 {
			continue
		}
		alpha := 0
		for _, c := range line {
			if c == ' ' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
				alpha++
			}
		}
		if float64(alpha)/float64(len(line)) <= 0.7 {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "election") || strings.Contains(lower, "commission") ||
			strings.Contains(lower, "card") || strings.Contains(lower, "identity") {
			continue
		}
		if len(line) > len(best) {
			best = line
		}
	}
	return best
}

// extractionConfidence mirrors the additive scoring of the upstream OCR
// pipeline: 0.5 for a standard-format ID (0.3 otherwise), 0.3 for a name,
// 0.2 for sufficient recognized text, capped at 1.0.
func extractionConfidence(voterID, name, text string) float64 {
	confidence := 0.3
	if voterIDPattern.MatchString(voterID) {
		confidence = 0.5
	}
	if len(name) > 3 {
		confidence += 0.3
	}
	if len(text) > 50 {
		confidence += 0.2
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}
