package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Source   SourceConfig   `mapstructure:"source"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Output   OutputConfig   `mapstructure:"output"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Lmstfy   LmstfyConfig   `mapstructure:"lmstfy"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name" validate:"required"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// 账本来源
const (
	SourceKindCSV   = "csv"
	SourceKindMySQL = "mysql"
)

// SourceConfig 账本来源配置
type SourceConfig struct {
	Kind             string `mapstructure:"kind" validate:"oneof=csv mysql"` // csv / mysql
	TransactionsPath string `mapstructure:"transactions_path"`               // csv 模式：交易表
	UsersPath        string `mapstructure:"users_path"`                      // csv 模式：用户表
}

// PipelineConfig 视图计算参数
type PipelineConfig struct {
	Seed           int64         `mapstructure:"seed"`                     // 0 表示按时间取种子
	Threads        int           `mapstructure:"threads" validate:"gt=0"`  // 并发计算的视图数
	Timeout        time.Duration `mapstructure:"timeout" validate:"gte=0"` // 单个视图超时
	Only           []string      `mapstructure:"only"`                     // 为空表示全部视图
	Graph          GraphConfig   `mapstructure:"graph"`
	Particles      SampleConfig  `mapstructure:"particles"`
	Marketplaces   SampleConfig  `mapstructure:"marketplaces"`
	Ring           RingConfig    `mapstructure:"ring"`
	Dashboard      DashConfig    `mapstructure:"dashboard"`
	FlareThreshold float64       `mapstructure:"flare_threshold" validate:"gte=0"`
}

// GraphConfig 交互图参数
type GraphConfig struct {
	TopBuyers  int `mapstructure:"top_buyers" validate:"gte=0"`
	TopSellers int `mapstructure:"top_sellers" validate:"gte=0"`
}

// SampleConfig 采样参数
type SampleConfig struct {
	SampleSize int `mapstructure:"sample_size" validate:"gte=0"`
}

// RingConfig 团伙检测参数
type RingConfig struct {
	Label   string `mapstructure:"label"`
	TopN    int    `mapstructure:"top_n" validate:"gt=0"`
	EdgeCap int    `mapstructure:"edge_cap" validate:"gte=0"`
}

// DashConfig 看板采样参数
type DashConfig struct {
	SampleSize   int `mapstructure:"sample_size" validate:"gte=0"`
	TopAnomalies int `mapstructure:"top_anomalies" validate:"gte=0"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	Dir             string        `mapstructure:"dir" validate:"required"`
	Indent          bool          `mapstructure:"indent"`
	MaxRetries      uint64        `mapstructure:"max_retries"`       // 可重试输出端的最大重试次数
	RetryMaxElapsed time.Duration `mapstructure:"retry_max_elapsed"` // 单个输出端的最长重试时间
}

// MySQLConfig MySQL 配置
type MySQLConfig struct {
	DSN        string `mapstructure:"dsn"`
	StoreViews bool   `mapstructure:"store_views"` // 是否将视图写入 derived_views 表
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	Channel  string        `mapstructure:"channel"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LmstfyConfig Lmstfy 配置
type LmstfyConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
	Token     string `mapstructure:"token"`
	Queue     string `mapstructure:"queue"`
	TTL       uint32 `mapstructure:"ttl"` // 任务 TTL（秒）
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // 为空则不启动 /metrics
}

// Load 加载配置文件
// 优先级：环境变量（含 .env）> 配置文件 > 默认值
func Load(configPath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("VEIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults 默认值与前端约定的视图参数一致
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "veia-viewsync")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("source.kind", SourceKindCSV)
	v.SetDefault("source.transactions_path", "data/veia_transactions.csv")
	v.SetDefault("source.users_path", "data/veia_users.csv")

	v.SetDefault("pipeline.seed", 0)
	v.SetDefault("pipeline.threads", 4)
	v.SetDefault("pipeline.timeout", 5*time.Minute)
	v.SetDefault("pipeline.graph.top_buyers", 80)
	v.SetDefault("pipeline.graph.top_sellers", 80)
	v.SetDefault("pipeline.particles.sample_size", 2000)
	v.SetDefault("pipeline.marketplaces.sample_size", 1000)
	v.SetDefault("pipeline.ring.label", "wash_trade_ring")
	v.SetDefault("pipeline.ring.top_n", 20)
	v.SetDefault("pipeline.ring.edge_cap", 200)
	v.SetDefault("pipeline.dashboard.sample_size", 500)
	v.SetDefault("pipeline.dashboard.top_anomalies", 100)
	v.SetDefault("pipeline.flare_threshold", 2.0)

	v.SetDefault("output.dir", "data")
	v.SetDefault("output.indent", true)
	v.SetDefault("output.max_retries", 3)
	v.SetDefault("output.retry_max_elapsed", 30*time.Second)

	v.SetDefault("redis.prefix", "veia:view:")
	v.SetDefault("redis.channel", "veia_views_ready")
	v.SetDefault("lmstfy.port", 7777)
	v.SetDefault("lmstfy.queue", "veia_view_published")
	v.SetDefault("lmstfy.ttl", 86400)
}

// validate 按 validate 标签校验字段，错误中使用配置键名
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			key := strings.TrimPrefix(fe.Namespace(), "Config.")
			if fe.Param() != "" {
				return fmt.Errorf("%s must satisfy %s=%s, got %v", key, fe.Tag(), fe.Param(), fe.Value())
			}
			return fmt.Errorf("%s is %s", key, fe.Tag())
		}
		return err
	}

	// 依赖其他字段的约束
	switch c.Source.Kind {
	case SourceKindCSV:
		if c.Source.TransactionsPath == "" {
			return fmt.Errorf("source.transactions_path is required for csv source")
		}
	case SourceKindMySQL:
		if c.MySQL.DSN == "" {
			return fmt.Errorf("mysql.dsn is required for mysql source")
		}
	}

	if c.MySQL.StoreViews && c.MySQL.DSN == "" {
		return fmt.Errorf("mysql.dsn is required when mysql.store_views is on")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Lmstfy.Enabled && c.Lmstfy.Host == "" {
		return fmt.Errorf("lmstfy.host is required when lmstfy is enabled")
	}
	return nil
}
