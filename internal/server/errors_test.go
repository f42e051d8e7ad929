package server

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
)

type coderError struct {
	code int
}

func (e coderError) Error() string   { return fmt.Sprintf("coded %d", e.code) }
func (e coderError) StatusCode() int { return e.code }

func TestResolveError(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"status error", NewStatusError(422, "name is required", nil), 422, "name is required"},
		{"wrapped status error", fmt.Errorf("handler: %w", NewStatusError(403, "forbidden", nil)), 403, "forbidden"},
		{"fiber error", fiber.NewError(fiber.StatusNotFound, "Cannot GET /api/x"), 404, "Cannot GET /api/x"},
		{"status coder", coderError{code: 418}, 418, "coded 418"},
		{"plain error", errors.New("db exploded"), 500, DefaultErrorMessage},
		{"invalid status", coderError{code: 42}, 500, DefaultErrorMessage},
		{"status without message", &StatusError{Status: 503}, 503, "Service Unavailable"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			status, msg := ResolveError(tc.err)
			if status != tc.wantStatus || msg != tc.wantMsg {
				t.Fatalf("ResolveError() = (%d, %q), want (%d, %q)", status, msg, tc.wantStatus, tc.wantMsg)
			}
		})
	}
}

func TestStatusErrorUnwraps(t *testing.T) {
	cause := errors.New("root cause")
	err := NewStatusError(502, "dev server unavailable", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("StatusError should unwrap to its cause")
	}
	if err.Error() != "dev server unavailable" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestErrorHandlerUsesExplicitStatus(t *testing.T) {
	app := newTestApp(t, func(app *fiber.App) error {
		app.Get("/api/teapot", func(fiber.Ctx) error {
			return NewStatusError(fiber.StatusTeapot, "short and stout", nil)
		})
		return nil
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/teapot", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusTeapot {
		t.Fatalf("expected 418, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"message":"short and stout"}` {
		t.Fatalf("unexpected body %s", body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, fiber.MIMEApplicationJSON) {
		t.Fatalf("expected JSON content type, got %q", ct)
	}
	if len(app.faults()) != 0 {
		t.Fatalf("client errors must not be propagated")
	}
}

func TestErrorHandlerDefaultsTo500AndPropagates(t *testing.T) {
	cause := errors.New("template missing")
	app := newTestApp(t, func(app *fiber.App) error {
		app.Get("/api/broken", func(fiber.Ctx) error {
			return cause
		})
		return nil
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/broken", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"message":"Internal Server Error"}` {
		t.Fatalf("internal details must not leak, got %s", body)
	}

	faults := app.faults()
	if len(faults) != 1 || !errors.Is(faults[0], cause) {
		t.Fatalf("expected the original error to reach the fault hook once, got %v", faults)
	}
}

func TestErrorHandlerAppliesToNonAPIPaths(t *testing.T) {
	app := newTestApp(t, func(app *fiber.App) error {
		app.Get("/download", func(fiber.Ctx) error {
			return NewStatusError(fiber.StatusGone, "moved away", nil)
		})
		return nil
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/download", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusGone {
		t.Fatalf("expected 410, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"message":"moved away"}` {
		t.Fatalf("unexpected body %s", body)
	}
}
