package assets

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/static"
	"github.com/sirupsen/logrus"

	"github.com/automation-site/automation-site/internal/server"
)

const indexFile = "index.html"

// StaticSite 服务生产构建目录，未命中的非 API 路径回落到 index.html（SPA 路由）。
type StaticSite struct {
	root      string
	indexPath string
	logger    *logrus.Logger
}

// NewStaticSite 校验构建目录；缺少 index.html 视为未构建，直接返回错误。
func NewStaticSite(root string, logger *logrus.Logger) (*StaticSite, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve public dir %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("could not find the build directory %s, make sure to build the client first: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("public dir %s is not a directory", abs)
	}

	indexPath := filepath.Join(abs, indexFile)
	if _, err := os.Stat(indexPath); err != nil {
		return nil, fmt.Errorf("missing %s in %s: %w", indexFile, abs, err)
	}

	return &StaticSite{root: abs, indexPath: indexPath, logger: logger}, nil
}

// Root 返回解析后的绝对目录。
func (s *StaticSite) Root() string {
	return s.root
}

// Mount 先挂静态文件，再挂 index 兜底；两者都放过 API 路径。
func (s *StaticSite) Mount(app *fiber.App) error {
	app.Get("/*", static.New(s.root, static.Config{
		Next: func(c fiber.Ctx) bool {
			return server.IsAPIPath(c.Path())
		},
	}))
	app.All("/*", s.serveIndex)

	s.logger.WithFields(logrus.Fields{
		"action":     "assets_mount",
		"mode":       "static",
		"public_dir": s.root,
	}).Debug("static site mounted")
	return nil
}

func (s *StaticSite) serveIndex(c fiber.Ctx) error {
	if server.IsAPIPath(c.Path()) {
		return c.Next()
	}
	// static 未命中时可能残留 404 状态
	c.Status(fiber.StatusOK)
	return c.SendFile(s.indexPath)
}
