package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/automation-site/automation-site/internal/assets"
	"github.com/automation-site/automation-site/internal/config"
	"github.com/automation-site/automation-site/internal/contact"
	"github.com/automation-site/automation-site/internal/logging"
	"github.com/automation-site/automation-site/internal/server"
	"github.com/automation-site/automation-site/internal/server/routes"
	"github.com/automation-site/automation-site/internal/version"
)

const (
	configEnvVar    = "AUTOMATION_SITE_CONFIG"
	shutdownTimeout = 10 * time.Second
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["mode"] = string(cfg.Mode())
		fields["listen_port"] = cfg.Global.ListenPort
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	scheduler, err := contact.NewScheduler(cfg.Contact.SchedulingURL)
	if err != nil {
		fmt.Fprintf(stdErr, "预约链接无效: %v\n", err)
		return 1
	}

	// 启动顺序：配置 → 日志 → 预约链接 → 资源服务 → Fiber app → 监听。
	// 模式只在 assets.New 中分支一次。
	httpClient := server.NewUpstreamClient(cfg.Assets)
	assetServer, err := assets.New(cfg, httpClient, logger)
	if err != nil {
		logger.WithError(err).WithField("action", "startup").Error("资源服务初始化失败")
		fmt.Fprintf(stdErr, "资源服务初始化失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["mode"] = string(cfg.Mode())
	fields["listen_port"] = cfg.Global.ListenPort
	fields["fail_fast"] = cfg.Global.FailFast
	fields["version"] = version.Full()
	if cfg.Mode().IsDevelopment() {
		fields["dev_server"] = cfg.Assets.DevServerURL
	} else {
		fields["public_dir"] = cfg.Assets.PublicDir
	}
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, assetServer, scheduler, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务异常退出: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("automation-site", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（可选，未指定时读取 AUTOMATION_SITE_CONFIG，仍为空则只用环境变量）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv(configEnvVar)
	if configFlag != "" {
		path = configFlag
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(cfg *config.Config, assetServer server.AssetServer, scheduler *contact.Scheduler, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	faults := newFaultMonitor(cfg.Global.FailFast, stop, logger)
	app, err := server.NewApp(server.AppOptions{
		Logger:    logger,
		Assets:    assetServer,
		Routes:    routes.Register(routes.Options{Mode: cfg.Mode(), Scheduler: scheduler}),
		BodyLimit: cfg.Global.BodyLimit,
		OnFault:   faults.Report,
	})
	if err != nil {
		return err
	}

	if err := serve(ctx, app, cfg.ListenAddr(), logger); err != nil {
		return err
	}
	return faults.Err()
}

// serve 绑定端口后输出启动行，ctx 结束时优雅关闭。
func serve(ctx context.Context, app *fiber.App, addr string, logger *logrus.Logger) error {
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"addr":   ln.Addr().String(),
	}).Info(fmt.Sprintf("Server running at http://%s", ln.Addr().String()))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			logger.WithField("action", "shutdown").Info("正在关闭 HTTP 服务")
			if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
				logger.WithError(err).WithField("action", "shutdown").Warn("关闭超时")
			}
		case <-done:
		}
	}()

	return app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
}

// faultMonitor 接收错误处理器上报的 5xx 错误。
// FailFast 关闭时仅记录（错误处理器已输出日志），开启时触发一次优雅关闭。
type faultMonitor struct {
	failFast bool
	shutdown context.CancelFunc
	logger   *logrus.Logger

	mu    sync.Mutex
	first error
}

func newFaultMonitor(failFast bool, shutdown context.CancelFunc, logger *logrus.Logger) *faultMonitor {
	return &faultMonitor{failFast: failFast, shutdown: shutdown, logger: logger}
}

func (m *faultMonitor) Report(err error) {
	if !m.failFast || err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.first != nil {
		return
	}
	m.first = err
	m.logger.WithError(err).WithField("action", "fail_fast").Error("未处理的服务端错误，准备退出")
	m.shutdown()
}

// Err 返回触发退出的首个错误。
func (m *faultMonitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.first == nil {
		return nil
	}
	return fmt.Errorf("stopped after unhandled error: %w", m.first)
}
