package server

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// DefaultErrorMessage is returned for errors that carry no status of their own.
const DefaultErrorMessage = "Internal Server Error"

// StatusError is an error that knows which HTTP status it should produce.
type StatusError struct {
	Status  int
	Message string
	Err     error
}

// NewStatusError wraps err with an HTTP status and a client-facing message.
func NewStatusError(status int, message string, err error) *StatusError {
	return &StatusError{Status: status, Message: message, Err: err}
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.Status)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusCode exposes the carried status.
func (e *StatusError) StatusCode() int {
	return e.Status
}

type statusCoder interface {
	StatusCode() int
}

// ErrorEnvelope is the JSON body of every error response.
type ErrorEnvelope struct {
	Message string `json:"message"`
}

// ResolveError maps err to the status and message sent to the client.
// Errors without a usable status become 500 with DefaultErrorMessage.
func ResolveError(err error) (int, string) {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) && validStatus(fiberErr.Code) {
		return fiberErr.Code, fiberErr.Message
	}
	var coder statusCoder
	if errors.As(err, &coder) && validStatus(coder.StatusCode()) {
		return coder.StatusCode(), messageOf(err, coder)
	}
	return fiber.StatusInternalServerError, DefaultErrorMessage
}

func messageOf(err error, coder statusCoder) string {
	if carrier, ok := coder.(error); ok {
		if msg := carrier.Error(); msg != "" {
			return msg
		}
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return http.StatusText(coder.StatusCode())
}

func validStatus(code int) bool {
	return code >= 100 && code <= 599
}

// NewErrorHandler returns the central Fiber error handler. It answers once
// with {"message": ...}, logs the failure and hands server errors to onFault
// after the response is written.
func NewErrorHandler(logger *logrus.Logger, onFault FaultHandler) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		status, message := ResolveError(err)

		fields := logrus.Fields{
			"action": "error",
			"method": c.Method(),
			"path":   c.Path(),
			"status": status,
		}
		if reqID := RequestID(c); reqID != "" {
			fields["request_id"] = reqID
		}
		entry := logger.WithFields(fields).WithError(err)
		if status >= fiber.StatusInternalServerError {
			entry.Error("request_failed")
		} else {
			entry.Debug("request_rejected")
		}

		writeErr := c.Status(status).JSON(ErrorEnvelope{Message: message})

		if status >= fiber.StatusInternalServerError && onFault != nil {
			onFault(err)
		}
		return writeErr
	}
}
