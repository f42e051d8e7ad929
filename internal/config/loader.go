package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultSchedulingURL 是表单提交后打开的预约页面。
const DefaultSchedulingURL = "https://calendly.com/dragan-danevski/automation-audit"

// envBindings 列出每个配置键可读取的环境变量，靠前的变量优先。
var envBindings = map[string][]string{
	"ListenPort":             {"PORT"},
	"Env":                    {"APP_ENV", "NODE_ENV"},
	"LogLevel":               {"LOG_LEVEL"},
	"LogFilePath":            {"LOG_FILE_PATH"},
	"BodyLimit":              {"BODY_LIMIT"},
	"FailFast":               {"FAIL_FAST"},
	"Assets.PublicDir":       {"PUBLIC_DIR"},
	"Assets.DevServerURL":    {"DEV_SERVER_URL"},
	"Assets.DevProxyTimeout": {"DEV_PROXY_TIMEOUT"},
	"Contact.SchedulingURL":  {"SCHEDULING_URL"},
}

// Load 读取可选的 TOML 配置文件与环境变量，注入默认值并完成校验。
// path 为空时只使用环境变量与默认值；工作目录下的 .env 会先被加载，但不会覆盖已有变量。
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyAssetDefaults(&cfg.Assets)
	if strings.TrimSpace(cfg.Contact.SchedulingURL) == "" {
		cfg.Contact.SchedulingURL = DefaultSchedulingURL
	}
	cfg.Global.Mode = ParseMode(cfg.Global.Env)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absPublic, err := filepath.Abs(cfg.Assets.PublicDir)
	if err != nil {
		return nil, fmt.Errorf("无法解析静态资源目录: %w", err)
	}
	cfg.Assets.PublicDir = absPublic

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 10000)
	v.SetDefault("Env", string(ModeProduction))
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("BodyLimit", 100*1024)
	v.SetDefault("FailFast", false)
	v.SetDefault("Assets.PublicDir", filepath.Join("dist", "public"))
	v.SetDefault("Assets.DevServerURL", "http://localhost:5173")
	v.SetDefault("Assets.DevProxyTimeout", "30s")
	v.SetDefault("Contact.SchedulingURL", DefaultSchedulingURL)
}

func bindEnv(v *viper.Viper) error {
	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("绑定环境变量 %s 失败: %w", key, err)
		}
	}
	return nil
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 10000
	}
	if g.BodyLimit == 0 {
		g.BodyLimit = 100 * 1024
	}
	if strings.TrimSpace(g.LogLevel) == "" {
		g.LogLevel = "info"
	}
}

func applyAssetDefaults(a *AssetsConfig) {
	if strings.TrimSpace(a.PublicDir) == "" {
		a.PublicDir = filepath.Join("dist", "public")
	}
	a.DevServerURL = strings.TrimRight(strings.TrimSpace(a.DevServerURL), "/")
	if a.DevProxyTimeout.DurationValue() == 0 {
		a.DevProxyTimeout = Duration(30 * time.Second)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
