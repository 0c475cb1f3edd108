package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/votegate/votegate/internal/directory"
	"github.com/votegate/votegate/internal/fraud"
	"github.com/votegate/votegate/internal/ledger"
	"github.com/votegate/votegate/internal/operator"
	"github.com/votegate/votegate/internal/report"
)

// AdminHandler exposes the operator-facing dashboard, fraud and audit endpoints.
type AdminHandler struct {
	directory directory.Repository
	ledger    ledger.Ledger
	monitor   fraud.Monitor
	reports   *report.Service
	operators *operator.Service
}

func NewAdminHandler(repo directory.Repository, led ledger.Ledger, monitor fraud.Monitor, reports *report.Service, operators *operator.Service) *AdminHandler {
	return &AdminHandler{directory: repo, ledger: led, monitor: monitor, reports: reports, operators: operators}
}

// RegisterAdminRoutes wires the operator endpoints onto an authenticated group.
func RegisterAdminRoutes(r fiber.Router, h *AdminHandler) {
	r.Get("/booths", h.ListBooths)
	r.Get("/dashboard/stats", h.DashboardStats)
	r.Get("/fraud-attempts", h.FraudAttempts)
	r.Get("/audit/export", h.ExportAuditTrail)
	r.Get("/audit/verify/:uuid", h.VerifyIntegrity)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates an operator and returns an access token.
func (h *AdminHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	token, err := h.operators.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, operator.ErrInvalidCredentials) {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(token)
}

// ListBooths returns every booth with its current turnout slice.
func (h *AdminHandler) ListBooths(c *fiber.Ctx) error {
	dash, err := h.reports.Dashboard(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"booths": dash.Booths,
		"count":  len(dash.Booths),
	})
}

// DashboardStats returns the aggregate stats snapshot.
func (h *AdminHandler) DashboardStats(c *fiber.Ctx) error {
	dash, err := h.reports.Dashboard(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(dash)
}

// FraudAttempts lists recorded fraud events, optionally bounded to a recent window.
func (h *AdminHandler) FraudAttempts(c *fiber.Ctx) error {
	var events []fraud.Event
	var err error

	if voterID := c.Query("voter_id"); voterID != "" {
		events, err = h.monitor.ListByVoter(c.UserContext(), voterID)
	} else if window := c.Query("window"); window != "" {
		d, perr := time.ParseDuration(window)
		if perr != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid window duration")
		}
		events, err = h.monitor.ListRecent(c.UserContext(), d)
	} else {
		events, err = h.monitor.ListRecent(c.UserContext(), 24*time.Hour)
	}
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"fraud_attempts": events,
		"count":          len(events),
	})
}

// ExportAuditTrail returns the full ledger plus fraud events as a compliance
// snapshot. Read paths only; appends in flight are unaffected.
func (h *AdminHandler) ExportAuditTrail(c *fiber.Ctx) error {
	entries, err := h.ledger.All(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	events, err := h.monitor.ListRecent(c.UserContext(), 0)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"entries":      entries,
		"fraud_events": events,
		"exported_at":  time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// VerifyIntegrity re-validates one voter's hash chain.
func (h *AdminHandler) VerifyIntegrity(c *fiber.Ctx) error {
	voterUUID := c.Params("uuid")
	report, err := h.ledger.VerifyIntegrity(c.UserContext(), voterUUID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"voter_uuid":      report.VoterUUID,
		"valid":           report.Valid,
		"entries":         report.Entries,
		"broken_sequence": report.BrokenSequence,
		"reason":          report.Reason,
	})
}
