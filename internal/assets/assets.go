package assets

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/automation-site/automation-site/internal/config"
	"github.com/automation-site/automation-site/internal/server"
)

// New 根据配置模式返回 AssetServer：development 使用 DevProxy，其余使用 StaticSite。
func New(cfg *config.Config, client *http.Client, logger *logrus.Logger) (server.AssetServer, error) {
	if cfg.Mode().IsDevelopment() {
		return NewDevProxy(cfg.Assets.DevServerURL, client, logger)
	}
	return NewStaticSite(cfg.Assets.PublicDir, logger)
}
