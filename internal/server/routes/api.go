package routes

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/automation-site/automation-site/internal/config"
	"github.com/automation-site/automation-site/internal/contact"
	"github.com/automation-site/automation-site/internal/server"
	"github.com/automation-site/automation-site/internal/version"
)

// Options 汇总 API 路由依赖。
type Options struct {
	Mode      config.Mode
	Scheduler *contact.Scheduler
}

type healthPayload struct {
	Status  string `json:"status"`
	Mode    string `json:"mode"`
	Version string `json:"version"`
}

type schedulingPayload struct {
	URL    string `json:"url"`
	Target string `json:"target"`
}

// Register 返回挂载 /api 路由的 RouteRegistrar。
func Register(opts Options) server.RouteRegistrar {
	return func(app *fiber.App) error {
		if app == nil {
			return errors.New("app is required")
		}
		if opts.Scheduler == nil {
			return errors.New("scheduler is required")
		}
		mode := opts.Mode
		if mode == "" {
			mode = config.ModeProduction
		}

		api := app.Group(server.APIPrefix)
		api.Get("/health", func(c fiber.Ctx) error {
			return c.JSON(healthPayload{
				Status:  "ok",
				Mode:    string(mode),
				Version: version.Version,
			})
		})
		api.Get("/scheduling", func(c fiber.Ctx) error {
			return c.JSON(schedulingPayload{
				URL:    opts.Scheduler.URL(),
				Target: contact.BlankTarget,
			})
		})
		return nil
	}
}
