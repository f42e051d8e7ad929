package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("ListenPort", "必须在 1-65535")
	}
	if g.BodyLimit <= 0 {
		return newFieldError("BodyLimit", "必须大于 0")
	}
	if g.LogMaxSize < 0 {
		return newFieldError("LogMaxSize", "不能为负数")
	}
	if g.LogMaxBackups < 0 {
		return newFieldError("LogMaxBackups", "不能为负数")
	}

	a := c.Assets
	if a.DevProxyTimeout.DurationValue() <= 0 {
		return newFieldError(assetsField("DevProxyTimeout"), "必须大于 0")
	}
	switch c.Mode() {
	case ModeDevelopment:
		if err := validateUpstream(a.DevServerURL); err != nil {
			return fmt.Errorf("%s: %w", assetsField("DevServerURL"), err)
		}
	default:
		if strings.TrimSpace(a.PublicDir) == "" {
			return newFieldError(assetsField("PublicDir"), "生产模式下不能为空")
		}
	}

	if err := validateUpstream(c.Contact.SchedulingURL); err != nil {
		return fmt.Errorf("Contact.SchedulingURL: %w", err)
	}

	return nil
}

// validateUpstream 要求 http/https 协议且包含 Host。
func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("地址缺少 Host: %s", raw)
	}
	return nil
}
