package server

import (
	"errors"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// APIPrefix marks the paths reserved for application routes.
const APIPrefix = "/api"

// AssetServer serves every non-API path. Exactly one implementation is
// mounted per process, chosen from the configured mode.
type AssetServer interface {
	Mount(app *fiber.App) error
}

// AssetServerFunc adapts a function to the AssetServer interface.
type AssetServerFunc func(app *fiber.App) error

// Mount makes AssetServerFunc satisfy AssetServer.
func (f AssetServerFunc) Mount(app *fiber.App) error {
	return f(app)
}

// RouteRegistrar attaches API handlers to the app. It runs before the asset
// server is mounted so API routes always win.
type RouteRegistrar func(app *fiber.App) error

// FaultHandler receives server errors after the client already got its
// JSON error response.
type FaultHandler func(err error)

// AppOptions controls how the Fiber application is assembled.
type AppOptions struct {
	Logger    *logrus.Logger
	Assets    AssetServer
	Routes    RouteRegistrar
	BodyLimit int
	OnFault   FaultHandler
}

const contextKeyRequestID = "_site_request_id"

// NewApp builds the gateway: request context, body ingestion, API request
// logging and recovery middlewares, then API routes, then the asset server.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Assets == nil {
		return nil, errors.New("asset server is required")
	}

	cfg := fiber.Config{
		AppName:       "automation-site",
		CaseSensitive: true,
		JSONEncoder:   json.Marshal,
		JSONDecoder:   json.Unmarshal,
		ErrorHandler:  NewErrorHandler(opts.Logger, opts.OnFault),
	}
	if opts.BodyLimit > 0 {
		cfg.BodyLimit = opts.BodyLimit
	}
	app := fiber.New(cfg)

	app.Use(requestContextMiddleware())
	app.Use(bodyParserMiddleware())
	app.Use(requestLogMiddleware(opts.Logger))
	app.Use(recover.New())

	if opts.Routes != nil {
		if err := opts.Routes(app); err != nil {
			return nil, err
		}
	}
	if err := opts.Assets.Mount(app); err != nil {
		return nil, err
	}

	return app, nil
}

// requestContextMiddleware 为每个请求生成 ID 并回写 X-Request-ID。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the context middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// IsAPIPath reports whether the path belongs to the /api namespace.
func IsAPIPath(path string) bool {
	return path == APIPrefix || strings.HasPrefix(path, APIPrefix+"/")
}
