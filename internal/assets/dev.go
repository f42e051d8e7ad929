package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/automation-site/automation-site/internal/logging"
	"github.com/automation-site/automation-site/internal/server"
)

// DevProxy 把非 API 请求转发给前端开发服务器，响应以流方式回写。
type DevProxy struct {
	upstream *url.URL
	client   *http.Client
	logger   *logrus.Logger
}

// NewDevProxy 解析 bundler 地址；client 为空时不可用。
func NewDevProxy(rawURL string, client *http.Client, logger *logrus.Logger) (*DevProxy, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid dev server url %q: %w", rawURL, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("dev server url must be http(s) with host: %q", rawURL)
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return &DevProxy{upstream: parsed, client: client, logger: logger}, nil
}

// Upstream 返回 bundler 基础地址。
func (p *DevProxy) Upstream() *url.URL {
	u := *p.upstream
	return &u
}

// Mount 挂载通配路由，API 路径继续交给后续处理（最终 404）。
func (p *DevProxy) Mount(app *fiber.App) error {
	app.All("/*", p.Handle)
	p.logger.WithFields(logrus.Fields{
		"action":   "assets_mount",
		"mode":     "dev_proxy",
		"upstream": p.upstream.String(),
	}).Debug("dev proxy mounted")
	return nil
}

// Handle 执行一次回源并把状态码、头部与响应体写回客户端。
func (p *DevProxy) Handle(c fiber.Ctx) error {
	if server.IsAPIPath(c.Path()) {
		return c.Next()
	}

	started := time.Now()
	requestID := server.RequestID(c)
	upstreamURL := p.resolveUpstreamURL(c)

	req, err := p.buildUpstreamRequest(c, upstreamURL)
	if err != nil {
		p.logResult(c, upstreamURL, requestID, 0, started, err)
		return server.NewStatusError(fiber.StatusBadGateway, "dev server unavailable", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logResult(c, upstreamURL, requestID, 0, started, err)
		return server.NewStatusError(fiber.StatusBadGateway, "dev server unavailable", err)
	}
	defer resp.Body.Close()

	copyResponseHeaders(c, resp.Header)
	c.Status(resp.StatusCode)

	if c.Method() == http.MethodHead {
		p.logResult(c, upstreamURL, requestID, resp.StatusCode, started, nil)
		return nil
	}

	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	p.logResult(c, upstreamURL, requestID, resp.StatusCode, started, err)
	if err != nil {
		return server.NewStatusError(fiber.StatusBadGateway, "dev server stream failed", err)
	}
	return nil
}

func (p *DevProxy) resolveUpstreamURL(c fiber.Ctx) *url.URL {
	uri := c.Request().URI()
	target := *p.upstream
	target.Path = p.upstream.Path + string(uri.Path())
	target.RawPath = ""
	target.RawQuery = string(uri.QueryString())
	return &target
}

func (p *DevProxy) buildUpstreamRequest(c fiber.Ctx, upstream *url.URL) (*http.Request, error) {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var body io.Reader = http.NoBody
	if raw := c.Body(); len(raw) > 0 {
		body = bytes.NewReader(append([]byte(nil), raw...))
	}

	req, err := http.NewRequestWithContext(ctx, c.Method(), upstream.String(), body)
	if err != nil {
		return nil, err
	}

	server.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Header.Del("Host")
	req.Host = upstream.Host
	req.Header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	req.Header.Set("X-Forwarded-Proto", c.Scheme())
	return req, nil
}

func (p *DevProxy) logResult(c fiber.Ctx, upstream *url.URL, requestID string, status int, started time.Time, err error) {
	fields := logging.RequestFields(c.Method(), c.Path(), status, time.Since(started), requestID)
	fields["action"] = "dev_proxy"
	fields["upstream"] = upstream.String()
	fields["upstream_status"] = status
	if err != nil {
		p.logger.WithFields(fields).WithError(err).Warn("dev_proxy_failed")
		return
	}
	p.logger.WithFields(fields).Debug("dev_proxy_complete")
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) || strings.EqualFold(key, fiber.HeaderContentLength) {
			continue
		}
		for i, value := range values {
			if i == 0 {
				c.Set(key, value)
				continue
			}
			c.Append(key, value)
		}
	}
}
