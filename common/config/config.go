package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// 共享连接配置；各服务的 internal/config 负责默认值，再调用 LoadFromEnv 覆盖

// DatabaseConfig PostgreSQL 连接
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConns        int
	MaxIdle         int
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
	ApplicationName string
}

// RedisConfig Redis 连接（统计缓存 + 审计 stream）
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

// MQTTConfig MQTT 发布端
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

var sslModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}

// GetDSN lib/pq key=value 形式；含空格或引号的值会被转义
func (c *DatabaseConfig) GetDSN() string {
	parts := []string{
		"host=" + dsnValue(c.Host),
		"port=" + strconv.Itoa(c.Port),
		"user=" + dsnValue(c.User),
		"password=" + dsnValue(c.Password),
		"dbname=" + dsnValue(c.Database),
		"sslmode=" + dsnValue(c.SSLMode),
	}
	if c.ConnectTimeout > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", int(c.ConnectTimeout.Seconds())))
	}
	if c.ApplicationName != "" {
		parts = append(parts, "application_name="+dsnValue(c.ApplicationName))
	}
	return strings.Join(parts, " ")
}

func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
}

func (c *DatabaseConfig) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, errors.New("database host is required"))
	}
	if c.Database == "" {
		errs = append(errs, errors.New("database name is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("database port out of range: %d", c.Port))
	}
	if c.SSLMode != "" && !slices.Contains(sslModes, c.SSLMode) {
		errs = append(errs, fmt.Errorf("unknown sslmode %q", c.SSLMode))
	}
	return errors.Join(errs...)
}

// LoadFromEnv 只覆盖已设置且可解析的变量，例如 DB_HOST / DB_MAX_CONNS / DB_CONNECT_TIMEOUT
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	e := envPrefix(prefix)
	e.str(&c.Host, "HOST")
	e.int(&c.Port, "PORT")
	e.str(&c.User, "USER")
	e.str(&c.Password, "PASSWORD")
	e.str(&c.Database, "NAME")
	e.str(&c.SSLMode, "SSLMODE")
	e.int(&c.MaxConns, "MAX_CONNS")
	e.int(&c.MaxIdle, "MAX_IDLE")
	e.dur(&c.ConnMaxIdleTime, "CONN_MAX_IDLE_TIME")
	e.dur(&c.ConnectTimeout, "CONNECT_TIMEOUT")
	e.str(&c.ApplicationName, "APPLICATION_NAME")
}

func (c *RedisConfig) LoadFromEnv(prefix string) {
	e := envPrefix(prefix)
	e.str(&c.Addr, "ADDR")
	e.str(&c.Password, "PASSWORD")
	e.int(&c.DB, "DB")
	e.int(&c.PoolSize, "POOL_SIZE")
	e.dur(&c.DialTimeout, "DIAL_TIMEOUT")
	e.dur(&c.ReadTimeout, "READ_TIMEOUT")
}

func (c *MQTTConfig) LoadFromEnv(prefix string) {
	e := envPrefix(prefix)
	e.str(&c.Broker, "BROKER")
	e.str(&c.ClientID, "CLIENT_ID")
	e.str(&c.Username, "USERNAME")
	e.str(&c.Password, "PASSWORD")
	qos := int(c.QoS)
	e.int(&qos, "QOS")
	if qos >= 0 && qos <= 2 {
		c.QoS = byte(qos)
	}
	e.dur(&c.ConnectTimeout, "CONNECT_TIMEOUT")
	e.dur(&c.PublishTimeout, "PUBLISH_TIMEOUT")
}

type envPrefix string

func (p envPrefix) get(key string) string { return os.Getenv(string(p) + "_" + key) }

func (p envPrefix) str(dst *string, key string) {
	if v := p.get(key); v != "" {
		*dst = v
	}
}

func (p envPrefix) int(dst *int, key string) {
	if i, err := strconv.Atoi(p.get(key)); err == nil {
		*dst = i
	}
}

func (p envPrefix) dur(dst *time.Duration, key string) {
	if d, err := time.ParseDuration(p.get(key)); err == nil && d > 0 {
		*dst = d
	}
}
