package config

import (
	"os"
	"strconv"
	"time"

	commoncfg "residence-data/common/config"

	"github.com/joho/godotenv"
)

// Config residence-data（HTTP API）配置
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled bool
	Database  commoncfg.DatabaseConfig

	RedisEnabled bool
	Redis        commoncfg.RedisConfig

	Log struct {
		Level  string
		Format string
	}

	Allocation AllocationConfig
	Stats      StatsConfig
	Audit      AuditConfig
	MQTT       MQTTConfig

	// StudentDirectoryURL 外部学生目录服务地址；为空时使用本库 students 表
	StudentDirectoryURL string
}

// AllocationConfig 床位分配事务参数
type AllocationConfig struct {
	MaxRetries          int           // deadlock/serialization 重试次数
	TxTimeout           time.Duration // 单次事务超时
	ExpiringDefaultDays int
}

// StatsConfig 统计缓存
type StatsConfig struct {
	CacheTTL time.Duration
}

// AuditConfig 审计事件输出
type AuditConfig struct {
	Stream string // Redis stream key
}

// MQTTConfig MQTT 通知（床位状态变更），默认禁用
type MQTTConfig struct {
	Enabled     bool
	TopicPrefix string
	commoncfg.MQTTConfig
}

// Load 加载配置：先尝试 .env（不存在则忽略），再读环境变量
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// DB 不可用时 main 会回退到内存仓库
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database = commoncfg.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "residence",
		SSLMode:  "disable",
		MaxConns: 20,
		MaxIdle:  5,

		ConnectTimeout:  5 * time.Second,
		ApplicationName: "residence-data",
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.RedisEnabled = getEnv("REDIS_ENABLED", "true") == "true"
	cfg.Redis = commoncfg.RedisConfig{
		Addr:        "localhost:6379",
		PoolSize:    10,
		DialTimeout: 2 * time.Second,
		ReadTimeout: time.Second,
	}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Allocation.MaxRetries = parseInt(getEnv("ALLOC_MAX_RETRIES", "3"), 3)
	cfg.Allocation.TxTimeout = parseDuration(getEnv("ALLOC_TX_TIMEOUT", "5s"), 5*time.Second)
	cfg.Allocation.ExpiringDefaultDays = parseInt(getEnv("EXPIRING_DEFAULT_DAYS", "30"), 30)

	cfg.Stats.CacheTTL = parseDuration(getEnv("STATS_CACHE_TTL", "30s"), 30*time.Second)
	cfg.Audit.Stream = getEnv("AUDIT_STREAM", "housing:audit")

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "residence")
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "residence-data"
	cfg.MQTT.QoS = 1
	cfg.MQTT.ConnectTimeout = 10 * time.Second
	cfg.MQTT.PublishTimeout = 5 * time.Second
	cfg.MQTT.MQTTConfig.LoadFromEnv("MQTT")

	cfg.StudentDirectoryURL = getEnv("STUDENT_DIRECTORY_URL", "")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
