package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MerchantConfig holds the credentials the payment processor
// authenticates with.
type MerchantConfig struct {
	MerchantID       string
	Key              string
	RequireSignature bool
}

// HTTPConfig holds the listen address and ingress rate limit settings.
// A zero RateLimitInterval or RateLimitBurst disables limiting.
type HTTPConfig struct {
	Addr              string
	RateLimitInterval time.Duration
	RateLimitBurst    int
	ShutdownTimeout   time.Duration
}

// KafkaConfig holds event publishing settings. Empty Brokers disables
// Kafka publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// RedisConfig holds order cache connection settings. An empty URL
// disables the cache.
type RedisConfig struct {
	URL                string
	DialTimeout        *time.Duration
	ReadTimeout        *time.Duration
	WriteTimeout       *time.Duration
	PoolSize           *int
	MinIdleConns       *int
	MaxRetries         *int
	HealthcheckTimeout time.Duration
	OrderTTL           time.Duration
	EnableOTel         bool
	TLSConfig          *tls.Config
}

// LoadMerchant reads the processor credentials from env.
func LoadMerchant() (MerchantConfig, error) {
	id, err := requiredString("PAYCOM_MERCHANT_ID")
	if err != nil {
		return MerchantConfig{}, err
	}
	key, err := requiredString("PAYCOM_KEY")
	if err != nil {
		return MerchantConfig{}, err
	}
	requireSig, err := optionalBool("PAYCOM_REQUIRE_SIGNATURE")
	if err != nil {
		return MerchantConfig{}, err
	}
	return MerchantConfig{
		MerchantID:       id,
		Key:              key,
		RequireSignature: requireSig,
	}, nil
}

// LoadHTTP reads the webhook server settings from env.
func LoadHTTP() (HTTPConfig, error) {
	cfg := HTTPConfig{
		Addr:            strings.TrimSpace(os.Getenv("HTTP_ADDR")),
		ShutdownTimeout: 5 * time.Second,
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	interval, err := optionalDuration("HTTP_RATE_LIMIT_INTERVAL")
	if err != nil {
		return cfg, err
	}
	if interval != nil {
		cfg.RateLimitInterval = *interval
	}
	burst, err := optionalInt("HTTP_RATE_LIMIT_BURST")
	if err != nil {
		return cfg, err
	}
	if burst != nil {
		cfg.RateLimitBurst = *burst
	}
	if (cfg.RateLimitInterval > 0) != (cfg.RateLimitBurst > 0) {
		return cfg, errors.New("HTTP_RATE_LIMIT_INTERVAL and HTTP_RATE_LIMIT_BURST must be set together")
	}

	shutdown, err := optionalDuration("HTTP_SHUTDOWN_TIMEOUT")
	if err != nil {
		return cfg, err
	}
	if shutdown != nil {
		cfg.ShutdownTimeout = *shutdown
	}
	return cfg, nil
}

// LoadKafka reads event publishing settings from env.
func LoadKafka() (KafkaConfig, error) {
	cfg := KafkaConfig{
		Topic: strings.TrimSpace(os.Getenv("KAFKA_TOPIC")),
	}
	if cfg.Topic == "" {
		cfg.Topic = "payment-events"
	}

	raw := strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	if raw == "" {
		return cfg, nil
	}
	for _, broker := range strings.Split(raw, ",") {
		broker = strings.TrimSpace(broker)
		if broker == "" {
			return cfg, errors.New("KAFKA_BROKERS contains an empty entry")
		}
		cfg.Brokers = append(cfg.Brokers, broker)
	}
	return cfg, nil
}

// LoadRedis reads order cache settings from env.
func LoadRedis() (RedisConfig, error) {
	cfg := RedisConfig{
		URL:                strings.TrimSpace(os.Getenv("REDIS_URL")),
		HealthcheckTimeout: 2 * time.Second,
		OrderTTL:           30 * time.Second,
	}
	if cfg.URL == "" {
		return cfg, nil
	}

	var err error
	if cfg.DialTimeout, err = optionalDuration("REDIS_DIAL_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.ReadTimeout, err = optionalDuration("REDIS_READ_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.WriteTimeout, err = optionalDuration("REDIS_WRITE_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.PoolSize, err = optionalInt("REDIS_POOL_SIZE"); err != nil {
		return cfg, err
	}
	if cfg.MinIdleConns, err = optionalInt("REDIS_MIN_IDLE_CONNS"); err != nil {
		return cfg, err
	}
	if cfg.MaxRetries, err = optionalInt("REDIS_MAX_RETRIES"); err != nil {
		return cfg, err
	}

	if healthcheck, derr := optionalDuration("REDIS_HEALTHCHECK_TIMEOUT"); derr != nil {
		return cfg, derr
	} else if healthcheck != nil {
		cfg.HealthcheckTimeout = *healthcheck
	}
	if ttl, derr := optionalDuration("REDIS_ORDER_TTL"); derr != nil {
		return cfg, derr
	} else if ttl != nil {
		cfg.OrderTTL = *ttl
	}

	if cfg.EnableOTel, err = optionalBool("REDIS_OTEL"); err != nil {
		return cfg, err
	}
	if cfg.TLSConfig, err = loadRedisTLSFromEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadRedisTLSFromEnv() (*tls.Config, error) {
	caFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CA_FILE"))
	certFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CERT_FILE"))
	keyFile := strings.TrimSpace(os.Getenv("REDIS_TLS_KEY_FILE"))
	serverName := strings.TrimSpace(os.Getenv("REDIS_TLS_SERVER_NAME"))
	insecureStr := strings.TrimSpace(os.Getenv("REDIS_TLS_INSECURE_SKIP_VERIFY"))

	if caFile == "" && certFile == "" && keyFile == "" && serverName == "" && insecureStr == "" {
		return nil, nil
	}
	if (certFile == "") != (keyFile == "") {
		return nil, errors.New("REDIS_TLS_CERT_FILE and REDIS_TLS_KEY_FILE must be set together")
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: serverName,
	}

	if insecureStr != "" {
		insecure, err := strconv.ParseBool(insecureStr)
		if err != nil {
			return nil, fmt.Errorf("REDIS_TLS_INSECURE_SKIP_VERIFY: %w", err)
		}
		tlsConfig.InsecureSkipVerify = insecure
	}

	if caFile != "" {
		pemData, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read REDIS_TLS_CA_FILE: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, errors.New("REDIS_TLS_CA_FILE contains no valid certificates")
		}
		tlsConfig.RootCAs = pool
	}

	if certFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load redis TLS keypair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func optionalDuration(name string) (*time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalInt(name string) (*int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalBool(name string) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return val, nil
}

func requiredString(name string) (string, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return raw, nil
}
