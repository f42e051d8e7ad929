package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// Mode 表示进程的服务模式，启动时确定一次，运行期间不再变化。
type Mode string

const (
	// ModeDevelopment 将非 API 请求交给前端开发服务器（Vite）。
	ModeDevelopment Mode = "development"
	// ModeProduction 从预构建目录提供静态文件，并对未命中的路径回退到 index.html。
	ModeProduction Mode = "production"
)

// ParseMode 只识别 development，其余任意取值（包括空值）都视为 production。
func ParseMode(raw string) Mode {
	if strings.EqualFold(strings.TrimSpace(raw), string(ModeDevelopment)) {
		return ModeDevelopment
	}
	return ModeProduction
}

// IsDevelopment 便于调用方做二选一判断。
func (m Mode) IsDevelopment() bool {
	return m == ModeDevelopment
}

// GlobalConfig 描述进程级运行参数：监听端口、模式、日志与请求体限制。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	Env           string `mapstructure:"Env"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
	BodyLimit     int    `mapstructure:"BodyLimit"`
	FailFast      bool   `mapstructure:"FailFast"`

	// Mode 由 Env 在 Load 阶段解析得到，不直接从配置读取。
	Mode Mode `mapstructure:"-"`
}

// AssetsConfig 决定前端资源的来源：生产模式的静态目录或开发模式的 bundler 地址。
type AssetsConfig struct {
	PublicDir       string   `mapstructure:"PublicDir"`
	DevServerURL    string   `mapstructure:"DevServerURL"`
	DevProxyTimeout Duration `mapstructure:"DevProxyTimeout"`
}

// ContactConfig 保存联系表单提交后跳转的预约链接。
type ContactConfig struct {
	SchedulingURL string `mapstructure:"SchedulingURL"`
}

// Config 是 TOML 文件 + 环境变量映射后的整体结构。
type Config struct {
	Global  GlobalConfig  `mapstructure:",squash"`
	Assets  AssetsConfig  `mapstructure:"Assets"`
	Contact ContactConfig `mapstructure:"Contact"`
}

// Mode 返回启动时解析出的服务模式。
func (c *Config) Mode() Mode {
	if c == nil || c.Global.Mode == "" {
		return ModeProduction
	}
	return c.Global.Mode
}

// ListenAddr 返回绑定所有网卡的监听地址。
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Global.ListenPort)
}
