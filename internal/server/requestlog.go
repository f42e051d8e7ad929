package server

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/automation-site/automation-site/internal/logging"
)

const (
	maxLogLineLength = 80
	logLineEllipsis  = "…"
)

// ResponseSnapshot is the read-only view of a finished response that the
// request log consumes.
type ResponseSnapshot interface {
	StatusCode() int
	// JSONPayload returns the serialized JSON body, if the response is JSON.
	JSONPayload() (string, bool)
}

type fiberSnapshot struct {
	c fiber.Ctx
}

// SnapshotResponse captures the response currently held by c.
func SnapshotResponse(c fiber.Ctx) ResponseSnapshot {
	return fiberSnapshot{c: c}
}

func (s fiberSnapshot) StatusCode() int {
	return s.c.Response().StatusCode()
}

func (s fiberSnapshot) JSONPayload() (string, bool) {
	resp := s.c.Response()
	if resp.IsBodyStream() {
		return "", false
	}
	if mediaType(string(resp.Header.ContentType())) != fiber.MIMEApplicationJSON {
		return "", false
	}
	body := bytes.TrimSpace(resp.Body())
	if len(body) == 0 {
		return "", false
	}
	return string(body), true
}

// requestLogMiddleware times every request and, for API paths, writes one
// line once the response is final. Chain errors are translated here so the
// logged status is the one the client receives.
func requestLogMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		method := c.Method()
		path := strings.Clone(c.Path())

		if chainErr := c.Next(); chainErr != nil {
			if err := c.App().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		if !IsLoggedPath(path) {
			return nil
		}

		elapsed := time.Since(started)
		snapshot := SnapshotResponse(c)
		line := FormatRequestLine(method, path, snapshot, elapsed)

		fields := logging.RequestFields(method, path, snapshot.StatusCode(), elapsed, RequestID(c))
		fields["action"] = "api_request"
		logger.WithFields(fields).Info(line)
		return nil
	}
}

// IsLoggedPath reports whether the request log covers path: any path that
// starts with /api, including /apiary, unlike the segment-aware IsAPIPath.
func IsLoggedPath(path string) bool {
	return strings.HasPrefix(path, APIPrefix)
}

// FormatRequestLine renders "METHOD PATH STATUS in Nms[ :: json]" capped at
// 80 characters.
func FormatRequestLine(method, path string, snapshot ResponseSnapshot, elapsed time.Duration) string {
	line := fmt.Sprintf("%s %s %d in %dms", method, path, snapshot.StatusCode(), elapsed.Milliseconds())
	if payload, ok := snapshot.JSONPayload(); ok {
		line += " :: " + payload
	}
	return truncateLogLine(line)
}

func truncateLogLine(line string) string {
	if utf8.RuneCountInString(line) <= maxLogLineLength {
		return line
	}
	runes := []rune(line)
	return string(runes[:maxLogLineLength-1]) + logLineEllipsis
}
