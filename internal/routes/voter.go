package routes

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/votegate/votegate/internal/ledger"
	"github.com/votegate/votegate/internal/verification"
)

// VoterHandler exposes the four verification steps the booth terminal drives.
type VoterHandler struct {
	verify *verification.Service
	logger *slog.Logger
}

func NewVoterHandler(verify *verification.Service, logger *slog.Logger) *VoterHandler {
	return &VoterHandler{verify: verify, logger: logger}
}

// RegisterVoterRoutes wires the voter-facing verification endpoints.
func RegisterVoterRoutes(r fiber.Router, h *VoterHandler, rateLimiter fiber.Handler) {
	voter := r.Group("/voter", rateLimiter)
	voter.Post("/verify-id", h.VerifyID)
	voter.Post("/verify-face", h.VerifyFace)
	voter.Post("/verify-iris", h.VerifyIris)
	voter.Post("/cast-vote", h.CastVote)
}

type verifyIDRequest struct {
	VoterID     string `json:"voter_id"`
	BoothID     string `json:"booth_id"`
	IDCardImage string `json:"id_card_image,omitempty"`
}

// VerifyID resolves the voter against the directory, optionally cross-checks
// the presented ID card, and opens the verification session.
func (h *VoterHandler) VerifyID(c *fiber.Ctx) error {
	var req verifyIDRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.VoterID == "" || req.BoothID == "" {
		return fiber.NewError(http.StatusBadRequest, "voter_id and booth_id are required")
	}
	card, err := decodeImage(req.IDCardImage)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "id_card_image is not valid base64")
	}

	out, err := h.verify.SubmitStep(c.UserContext(), verification.SubmitStepInput{
		Step:        ledger.StepIDVerified,
		VoterID:     req.VoterID,
		BoothID:     req.BoothID,
		IDCardImage: card,
	})
	if err != nil {
		// An ID card that contradicts the claimed voter id is bad input on
		// this step, not a biometric threshold failure.
		var rejection *verification.SecurityRejection
		if errors.As(err, &rejection) {
			return fiber.NewError(http.StatusBadRequest, rejection.Error())
		}
		return mapVerificationError(err)
	}

	resp := fiber.Map{
		"voter_uuid":   out.Voter.UUID,
		"name":         out.Voter.Name,
		"booth_number": out.Voter.BoothID,
		"ledger_hash":  out.Entry.PayloadHash,
		"next_step":    out.NextStep,
	}
	if out.OCR != nil {
		resp["ocr_confidence"] = out.OCR.Confidence
	}
	return c.Status(http.StatusOK).JSON(resp)
}

type verifyFaceRequest struct {
	VoterUUID string                    `json:"voter_uuid"`
	FaceImage string                    `json:"face_image"`
	Liveness  verification.LivenessData `json:"liveness_data"`
}

// VerifyFace runs the face match and liveness gate.
func (h *VoterHandler) VerifyFace(c *fiber.Ctx) error {
	var req verifyFaceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.VoterUUID == "" {
		return fiber.NewError(http.StatusBadRequest, "voter_uuid is required")
	}
	face, err := decodeImage(req.FaceImage)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "face_image is not valid base64")
	}

	out, err := h.verify.SubmitStep(c.UserContext(), verification.SubmitStepInput{
		Step:      ledger.StepFaceVerified,
		VoterUUID: req.VoterUUID,
		FaceImage: face,
		Liveness:  req.Liveness,
	})
	if err != nil {
		return mapVerificationError(err)
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"verified":        true,
		"face_confidence": out.Face.Confidence,
		"liveness_score":  out.Face.LivenessScore,
		"quality_score":   out.Face.QualityScore,
		"enrolled":        out.Face.Enrolled,
		"ledger_hash":     out.Entry.PayloadHash,
		"next_step":       out.NextStep,
	})
}

type verifyIrisRequest struct {
	VoterUUID string `json:"voter_uuid"`
	IrisImage string `json:"iris_image"`
}

// VerifyIris runs the per-eye iris match.
func (h *VoterHandler) VerifyIris(c *fiber.Ctx) error {
	var req verifyIrisRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.VoterUUID == "" {
		return fiber.NewError(http.StatusBadRequest, "voter_uuid is required")
	}
	iris, err := decodeImage(req.IrisImage)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "iris_image is not valid base64")
	}

	out, err := h.verify.SubmitStep(c.UserContext(), verification.SubmitStepInput{
		Step:      ledger.StepIrisVerified,
		VoterUUID: req.VoterUUID,
		IrisImage: iris,
	})
	if err != nil {
		return mapVerificationError(err)
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"verified":    true,
		"confidence":  out.Iris.Confidence,
		"eye_results": out.Iris.Eyes,
		"enrolled":    out.Iris.Enrolled,
		"ledger_hash": out.Entry.PayloadHash,
		"next_step":   out.NextStep,
	})
}

type castVoteRequest struct {
	VoterUUID string `json:"voter_uuid"`
}

// CastVote records the terminal vote-cast step and freezes the session.
func (h *VoterHandler) CastVote(c *fiber.Ctx) error {
	var req castVoteRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.VoterUUID == "" {
		return fiber.NewError(http.StatusBadRequest, "voter_uuid is required")
	}

	out, err := h.verify.SubmitStep(c.UserContext(), verification.SubmitStepInput{
		Step:      ledger.StepVoteCast,
		VoterUUID: req.VoterUUID,
	})
	if err != nil {
		return mapVerificationError(err)
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"ledger_hash":    out.Entry.PayloadHash,
		"transaction_id": out.TransactionID,
		"timestamp":      out.Entry.Timestamp.Format(time.RFC3339Nano),
	})
}

// mapVerificationError translates the core error taxonomy into HTTP statuses.
func mapVerificationError(err error) error {
	var (
		outOfOrder *verification.OutOfOrderError
		mismatch   *verification.BoothMismatchError
		rejection  *verification.SecurityRejection
		upstream   *verification.UpstreamError
	)
	switch {
	case errors.Is(err, verification.ErrMissingEvidence):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.As(err, &outOfOrder):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, verification.ErrVoterNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.As(err, &mismatch):
		// Same body as an unknown voter so the response does not reveal
		// where the claimed voter is actually registered.
		return fiber.NewError(http.StatusNotFound, verification.ErrVoterNotFound.Error())
	case errors.Is(err, verification.ErrAlreadyVoted):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.As(err, &rejection):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.As(err, &upstream):
		return fiber.NewError(http.StatusInternalServerError, "verification backend unavailable, please retry")
	default:
		return err
	}
}

// decodeImage accepts raw base64 or a data URL and returns the image bytes.
// An empty input is valid and yields nil.
func decodeImage(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if idx := strings.Index(s, ";base64,"); idx >= 0 {
		s = s[idx+len(";base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
