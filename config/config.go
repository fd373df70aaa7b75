package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"db"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Log          LogConfig          `mapstructure:"log"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Mirror       MirrorConfig       `mapstructure:"mirror"`
	Outbox       OutboxConfig       `mapstructure:"outbox"`
	Directory    DirectoryConfig    `mapstructure:"directory"`
	Gamification GamificationConfig `mapstructure:"gamification"`
	Cache        CacheConfig        `mapstructure:"cache"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	BaseURL         string        `mapstructure:"base_url"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
	RateLimit       RateLimit     `mapstructure:"rate_limit"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// RateLimit 写接口限流配置（按用户滑动窗口）
type RateLimit struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
	LogSQL          bool   `mapstructure:"log_sql"`
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（实时镜像、令牌黑名单、限流共用）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 认证配置
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LedgerConfig 考勤台账配置
type LedgerConfig struct {
	GraceMinutes    int            `mapstructure:"grace_minutes"`
	LockTimeout     time.Duration  `mapstructure:"lock_timeout"`
	MaxHistoryDays  int            `mapstructure:"max_history_days"`
	DefaultSchedule ScheduleConfig `mapstructure:"default_schedule"`
}

// ScheduleConfig 新建人员时使用的默认排班
type ScheduleConfig struct {
	WorkDays []int  `mapstructure:"work_days"` // ISO 星期：1=周一 … 7=周日
	Start    string `mapstructure:"start"`     // HH:MM
	End      string `mapstructure:"end"`       // HH:MM
	Timezone string `mapstructure:"timezone"`
}

// MirrorConfig 实时镜像配置
type MirrorConfig struct {
	KeyPrefix               string        `mapstructure:"key_prefix"`
	StatusTTL               time.Duration `mapstructure:"status_ttl"`
	BreakerFailureThreshold uint32        `mapstructure:"breaker_failure_threshold"`
	BreakerTimeout          time.Duration `mapstructure:"breaker_timeout"`
}

// OutboxConfig 事务发件箱中继配置
type OutboxConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	BatchSize         int           `mapstructure:"batch_size"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	HandlerRetries    int           `mapstructure:"handler_retries"`
	HandlerRetryDelay time.Duration `mapstructure:"handler_retry_delay"`
}

// DirectoryConfig 外部人员目录配置
type DirectoryConfig struct {
	Mode          string        `mapstructure:"mode"` // http | file
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	SnapshotFile  string        `mapstructure:"snapshot_file"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

// GamificationConfig 积分与连续打卡配置
type GamificationConfig struct {
	BasePoints int `mapstructure:"base_points"`
	LatePoints int `mapstructure:"late_points"`
}

// CacheConfig 进程内缓存配置
type CacheConfig struct {
	PersonTTL        time.Duration `mapstructure:"person_ttl"`
	PersonMaxEntries int64         `mapstructure:"person_max_entries"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("ATTEND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件不存在时仅依赖默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// ── 关键配置校验 ──
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.rate_limit.limit", 30)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "attendance")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)  // 60分钟
	v.SetDefault("db.conn_max_idle_time", 30) // 30分钟
	v.SetDefault("db.log_sql", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwt_secret", "") // 仅为使 ATTEND_AUTH_JWT_SECRET 生效
	v.SetDefault("auth.issuer", "attendance")
	v.SetDefault("auth.access_token_ttl", "15m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("ledger.grace_minutes", 15)
	v.SetDefault("ledger.lock_timeout", "3s")
	v.SetDefault("ledger.max_history_days", 366)
	v.SetDefault("ledger.default_schedule.work_days", []int{1, 2, 3, 4, 5})
	v.SetDefault("ledger.default_schedule.start", "09:00")
	v.SetDefault("ledger.default_schedule.end", "18:00")
	v.SetDefault("ledger.default_schedule.timezone", "Asia/Shanghai")

	v.SetDefault("mirror.key_prefix", "attendance")
	v.SetDefault("mirror.status_ttl", "48h")
	v.SetDefault("mirror.breaker_failure_threshold", 5)
	v.SetDefault("mirror.breaker_timeout", "30s")

	v.SetDefault("outbox.poll_interval", "2s")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.max_attempts", 10)
	v.SetDefault("outbox.retry_backoff", "5s")
	v.SetDefault("outbox.handler_retries", 3)
	v.SetDefault("outbox.handler_retry_delay", "200ms")

	v.SetDefault("directory.mode", "file")
	v.SetDefault("directory.snapshot_file", "./config/directory.yaml")
	v.SetDefault("directory.base_url", "")
	v.SetDefault("directory.api_key", "")
	v.SetDefault("directory.timeout", "5s")
	v.SetDefault("directory.rate_per_second", 10)
	v.SetDefault("directory.burst", 20)

	v.SetDefault("gamification.base_points", 10)
	v.SetDefault("gamification.late_points", 5)

	v.SetDefault("cache.person_ttl", "5m")
	v.SetDefault("cache.person_max_entries", 10000)
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if c.Ledger.GraceMinutes < 0 {
		return fmt.Errorf("配置校验失败: ledger.grace_minutes 不能为负数")
	}
	if c.Ledger.LockTimeout <= 0 {
		return fmt.Errorf("配置校验失败: ledger.lock_timeout 必须大于 0")
	}
	if _, err := time.LoadLocation(c.Ledger.DefaultSchedule.Timezone); err != nil {
		return fmt.Errorf("配置校验失败: ledger.default_schedule.timezone 无效: %w", err)
	}
	for _, d := range c.Ledger.DefaultSchedule.WorkDays {
		if d < 1 || d > 7 {
			return fmt.Errorf("配置校验失败: ledger.default_schedule.work_days 取值必须在 1-7 之间")
		}
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("配置校验失败: outbox.batch_size 必须大于 0")
	}
	switch c.Directory.Mode {
	case "http":
		if c.Directory.BaseURL == "" {
			return fmt.Errorf("配置校验失败: directory.mode=http 时 directory.base_url 不能为空")
		}
	case "file":
		if c.Directory.SnapshotFile == "" {
			return fmt.Errorf("配置校验失败: directory.mode=file 时 directory.snapshot_file 不能为空")
		}
	default:
		return fmt.Errorf("配置校验失败: directory.mode 仅支持 http 或 file")
	}
	return nil
}
