// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	CacheDriverValkey    = "valkey"
	CacheDriverMemcached = "memcached"
)

// Config holds environment-driven settings for the API.
type Config struct {
	HTTPAddr string

	ScyllaNodes        []string
	ScyllaMetaKeyspace string
	ScyllaDataKeyspace string

	CacheDriver   string
	ValkeyNodes   []string
	ValkeyService string
	MemcachedAddr string
	CacheTTL      time.Duration

	KafkaBrokers     []string
	KafkaGroupID     string
	KafkaTopicPrefix string

	MQTTBroker  string
	MQTTTopic   string
	MQTTWorkers int

	EmqxURL       string
	EmqxAPIKey    string
	EmqxAPISecret string

	TempoEndpoint   string
	RefreshInterval time.Duration

	LogLevel  string
	LogPretty bool
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		ScyllaNodes:        splitList(os.Getenv("SCYLLA_NODES")),
		ScyllaMetaKeyspace: getEnv("SCYLLA_META_KEYSPACE", "ecobin_meta"),
		ScyllaDataKeyspace: getEnv("SCYLLA_DATA_KEYSPACE", "ecobin_data"),
		CacheDriver:        strings.ToLower(getEnv("CACHE_DRIVER", CacheDriverValkey)),
		ValkeyNodes:        splitList(os.Getenv("VALKEY_NODES")),
		ValkeyService:      os.Getenv("VALKEY_SERVICE"),
		MemcachedAddr:      os.Getenv("MEMCACHED_ADDR"),
		KafkaBrokers:       splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "ecobin-api"),
		KafkaTopicPrefix:   getEnv("KAFKA_TOPIC_PREFIX", "device_events"),
		MQTTBroker:         os.Getenv("MQTT_BROKER"),
		MQTTTopic:          getEnv("MQTT_TOPIC", "ecobin/+/telemetry"),
		EmqxURL:            os.Getenv("EMQX_URL"),
		EmqxAPIKey:         os.Getenv("EMQX_API_KEY"),
		EmqxAPISecret:      os.Getenv("EMQX_API_SECRET"),
		TempoEndpoint:      os.Getenv("TEMPO_ENDPOINT"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}

	if len(cfg.ScyllaNodes) == 0 {
		return cfg, errors.New("SCYLLA_NODES is required")
	}

	switch cfg.CacheDriver {
	case CacheDriverValkey:
		if len(cfg.ValkeyNodes) == 0 && cfg.ValkeyService == "" {
			return cfg, errors.New("no Valkey discovery env provided (VALKEY_NODES or VALKEY_SERVICE)")
		}
	case CacheDriverMemcached:
		if cfg.MemcachedAddr == "" {
			return cfg, errors.New("MEMCACHED_ADDR is required for the memcached driver")
		}
	default:
		return cfg, fmt.Errorf("invalid CACHE_DRIVER: %s", cfg.CacheDriver)
	}

	var err error
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", 5*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.RefreshInterval, err = getDuration("REFRESH_INTERVAL", 5*time.Second); err != nil {
		return cfg, err
	}
	if cfg.MQTTWorkers, err = getInt("MQTT_WORKERS", 4); err != nil {
		return cfg, err
	}
	if cfg.LogPretty, err = getBool("LOG_PRETTY", false); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// EmqxEnabled reports whether device pairing should provision MQTT users.
func (c Config) EmqxEnabled() bool {
	return c.EmqxURL != "" && c.EmqxAPIKey != "" && c.EmqxAPISecret != ""
}

// ResolveValkeyAddrs returns the configured Valkey nodes, resolving
// VALKEY_SERVICE through DNS when no explicit nodes are set.
func (c Config) ResolveValkeyAddrs() ([]string, error) {
	if len(c.ValkeyNodes) > 0 {
		return c.ValkeyNodes, nil
	}

	addrs, err := net.LookupHost(c.ValkeyService)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", c.ValkeyService, err)
	}
	out := make([]string, 0, len(addrs))
	for _, ip := range addrs {
		out = append(out, net.JoinHostPort(ip, "6379"))
	}
	return out, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getInt(key string, defaultVal int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return defaultVal, fmt.Errorf("invalid %s: %s", key, raw)
	}
	return v, nil
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return defaultVal, fmt.Errorf("invalid %s: %s", key, raw)
	}
	return d, nil
}

func getBool(key string, defaultVal bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultVal, fmt.Errorf("invalid %s: %s", key, raw)
	}
	return b, nil
}
