package server

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v3"
)

const (
	contextKeyRawBody  = "_site_raw_body"
	contextKeyJSONBody = "_site_json_body"
	contextKeyFormBody = "_site_form_body"
)

// bodyParserMiddleware decodes JSON and urlencoded bodies before any handler
// runs. JSON bodies keep an exact copy of their raw bytes so webhook handlers
// can verify signatures over what the caller actually sent.
func bodyParserMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		body := c.Body()
		if len(body) == 0 {
			return c.Next()
		}

		switch mediaType(c.Get(fiber.HeaderContentType)) {
		case fiber.MIMEApplicationJSON:
			raw := append([]byte(nil), body...)
			parsed, err := decodeJSONBody(raw, c.App().Config().JSONDecoder)
			if err != nil {
				return NewStatusError(fiber.StatusBadRequest, "invalid JSON body", err)
			}
			c.Locals(contextKeyRawBody, raw)
			c.Locals(contextKeyJSONBody, parsed)
		case fiber.MIMEApplicationForm:
			values, err := url.ParseQuery(string(body))
			if err != nil {
				return NewStatusError(fiber.StatusBadRequest, "invalid form body", err)
			}
			c.Locals(contextKeyFormBody, flattenForm(values))
		}
		return c.Next()
	}
}

// decodeJSONBody only accepts objects and arrays at the top level.
func decodeJSONBody(raw []byte, decode func([]byte, any) error) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, errNonStructuredJSON
	}
	var parsed any
	if err := decode(raw, &parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

var errNonStructuredJSON = NewStatusError(fiber.StatusBadRequest, "JSON body must be an object or array", nil)

// flattenForm keeps the first value of every key; nested keys such as
// a[b]=1 stay literal.
func flattenForm(values url.Values) map[string]string {
	flat := make(map[string]string, len(values))
	for key, vals := range values {
		if len(vals) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = vals[0]
	}
	return flat
}

func mediaType(contentType string) string {
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// RawBody returns the exact bytes of a parsed JSON request body.
func RawBody(c fiber.Ctx) ([]byte, bool) {
	raw, ok := c.Locals(contextKeyRawBody).([]byte)
	return raw, ok
}

// JSONBody returns the decoded JSON request body.
func JSONBody(c fiber.Ctx) (any, bool) {
	value := c.Locals(contextKeyJSONBody)
	return value, value != nil
}

// FormBody returns the flat key/value view of a urlencoded request body.
func FormBody(c fiber.Ctx) (map[string]string, bool) {
	form, ok := c.Locals(contextKeyFormBody).(map[string]string)
	return form, ok
}
