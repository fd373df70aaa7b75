package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: \"0123456789abcdef\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置应成功: %v", err)
	}
	if cfg.Ledger.GraceMinutes != 15 {
		t.Errorf("默认宽限期应为 15 分钟，实际 %d", cfg.Ledger.GraceMinutes)
	}
	if cfg.Ledger.LockTimeout != 3*time.Second {
		t.Errorf("默认锁超时应为 3s，实际 %s", cfg.Ledger.LockTimeout)
	}
	if len(cfg.Ledger.DefaultSchedule.WorkDays) != 5 {
		t.Errorf("默认工作日应为 5 天，实际 %v", cfg.Ledger.DefaultSchedule.WorkDays)
	}
	if cfg.Directory.Mode != "file" {
		t.Errorf("默认目录模式应为 file，实际 %s", cfg.Directory.Mode)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: \"0123456789abcdef\"\n")
	t.Setenv("ATTEND_LEDGER_GRACE_MINUTES", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置应成功: %v", err)
	}
	if cfg.Ledger.GraceMinutes != 5 {
		t.Errorf("环境变量应覆盖宽限期，实际 %d", cfg.Ledger.GraceMinutes)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8080},
			Auth:   AuthConfig{JWTSecret: "0123456789abcdef"},
			Ledger: LedgerConfig{
				GraceMinutes: 15,
				LockTimeout:  time.Second,
				DefaultSchedule: ScheduleConfig{
					WorkDays: []int{1, 2, 3, 4, 5},
					Timezone: "UTC",
				},
			},
			Outbox:    OutboxConfig{BatchSize: 10},
			Directory: DirectoryConfig{Mode: "file", SnapshotFile: "x.yaml"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"合法配置", func(c *Config) {}, false},
		{"密钥过短", func(c *Config) { c.Auth.JWTSecret = "short" }, true},
		{"宽限期为负", func(c *Config) { c.Ledger.GraceMinutes = -1 }, true},
		{"锁超时为零", func(c *Config) { c.Ledger.LockTimeout = 0 }, true},
		{"非法时区", func(c *Config) { c.Ledger.DefaultSchedule.Timezone = "Mars/Olympus" }, true},
		{"非法工作日", func(c *Config) { c.Ledger.DefaultSchedule.WorkDays = []int{0} }, true},
		{"http 模式缺少地址", func(c *Config) { c.Directory.Mode = "http" }, true},
		{"未知目录模式", func(c *Config) { c.Directory.Mode = "ldap" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
