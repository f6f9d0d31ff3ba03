package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// FromEnv 从 .env（如存在）与环境变量构造配置。
// 功能：先加载当前目录的 .env（缺失时忽略），再读取环境变量覆盖默认值。
// 说明：上游密钥沿用 OPENAI_API_KEY / WEBHOOK_SECRET 两个通用变量名。
func FromEnv() Config {
	_ = godotenv.Load()
	var c Config
	c.Host = getenv("VIDEOGEN_HOST", "0.0.0.0")
	c.Port = getint("VIDEOGEN_PORT", 8899)
	c.Provider.BaseURL = getenv("VIDEOGEN_PROVIDER_BASE_URL", "https://api.openai.com/v1")
	c.Provider.APIKey = getenv("OPENAI_API_KEY", "")
	c.Provider.WebhookSecret = getenv("WEBHOOK_SECRET", "")
	c.Mysql.DataSource = getenv("VIDEOGEN_MYSQL_DSN", "")
	c.Sqlite.Path = getenv("VIDEOGEN_SQLITE_PATH", "")
	c.PollSeconds = getint("VIDEOGEN_POLL_SECONDS", 2)
	c.MaxJobAgeMinutes = getint("VIDEOGEN_MAX_JOB_AGE_MINUTES", 60)
	c.PollFailureCap = getint("VIDEOGEN_POLL_FAILURE_CAP", 5)
	c.RetainTerminalHours = getint("VIDEOGEN_RETAIN_TERMINAL_HOURS", 24)
	c.ArtifactDir = getenv("VIDEOGEN_ARTIFACT_DIR", "")
	return c
}

// getenv 读取环境变量，空值回退默认。
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getint 读取整型环境变量，非法或缺失回退默认。
func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
