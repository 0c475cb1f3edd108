package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/votegate/votegate/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := fiber.New()
	logger := logging.Discard()
	app.Use(Idempotency(cache, time.Minute, logger))

	calls := 0
	app.Post("/verify-id", func(c *fiber.Ctx) error {
		calls++
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"call": calls})
	})
	app.Post("/cast-vote", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"step": "vote_cast"})
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}
	return app, cleanup
}

func postJSON(t *testing.T, app *fiber.App, path, key string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test %s: %v", path, err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode, string(body)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, cleanup := setupTestApp(t)
	defer cleanup()

	status, _ := postJSON(t, app, "/verify-id", "")
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	app, cleanup := setupTestApp(t)
	defer cleanup()

	status, body := postJSON(t, app, "/verify-id", "abc123")
	if status != fiber.StatusOK {
		t.Fatalf("first request status = %d", status)
	}

	status2, body2 := postJSON(t, app, "/verify-id", "abc123")
	if status2 != fiber.StatusOK {
		t.Fatalf("replayed status = %d", status2)
	}
	if body2 != body {
		t.Fatalf("replay body %q differs from original %q", body2, body)
	}
}

func TestIdempotencyKeyIsScopedPerPath(t *testing.T) {
	app, cleanup := setupTestApp(t)
	defer cleanup()

	postJSON(t, app, "/verify-id", "shared-key")
	_, body := postJSON(t, app, "/cast-vote", "shared-key")
	if !strings.Contains(body, "vote_cast") {
		t.Fatalf("cast-vote with a reused key must run its own handler, got %q", body)
	}
}
