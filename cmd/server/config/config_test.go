package config

import (
	"testing"
	"time"
)

func TestLoadMerchant(t *testing.T) {
	t.Setenv("PAYCOM_MERCHANT_ID", "Paycom")
	t.Setenv("PAYCOM_KEY", "top-secret")
	t.Setenv("PAYCOM_REQUIRE_SIGNATURE", "true")

	cfg, err := LoadMerchant()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MerchantID != "Paycom" || cfg.Key != "top-secret" || !cfg.RequireSignature {
		t.Fatalf("unexpected merchant cfg: %+v", cfg)
	}
}

func TestLoadMerchant_MissingKey(t *testing.T) {
	t.Setenv("PAYCOM_MERCHANT_ID", "Paycom")
	t.Setenv("PAYCOM_KEY", "")

	if _, err := LoadMerchant(); err == nil {
		t.Fatalf("expected error when PAYCOM_KEY is empty")
	}
}

func TestLoadHTTP_Defaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("HTTP_RATE_LIMIT_INTERVAL", "")
	t.Setenv("HTTP_RATE_LIMIT_BURST", "")

	cfg, err := LoadHTTP()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.RateLimitInterval != 0 || cfg.RateLimitBurst != 0 {
		t.Fatalf("expected rate limiting disabled: %+v", cfg)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Fatalf("unexpected shutdown timeout: %v", cfg.ShutdownTimeout)
	}
}

func TestLoadHTTP_RateLimit(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("HTTP_RATE_LIMIT_INTERVAL", "5ms")
	t.Setenv("HTTP_RATE_LIMIT_BURST", "10")

	cfg, err := LoadHTTP()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.RateLimitInterval != 5*time.Millisecond || cfg.RateLimitBurst != 10 {
		t.Fatalf("unexpected http cfg: %+v", cfg)
	}
}

func TestLoadHTTP_RateLimitHalfConfigured(t *testing.T) {
	t.Setenv("HTTP_RATE_LIMIT_INTERVAL", "5ms")
	t.Setenv("HTTP_RATE_LIMIT_BURST", "")

	if _, err := LoadHTTP(); err == nil {
		t.Fatalf("expected error for half-configured rate limit")
	}
}

func TestLoadKafka(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("KAFKA_TOPIC", "")

	cfg, err := LoadKafka()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Brokers) != 2 || cfg.Brokers[0] != "broker-1:9092" || cfg.Brokers[1] != "broker-2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.Brokers)
	}
	if cfg.Topic != "payment-events" {
		t.Fatalf("unexpected topic: %s", cfg.Topic)
	}
}

func TestLoadKafka_Disabled(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := LoadKafka()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Brokers) != 0 {
		t.Fatalf("expected kafka disabled, got %v", cfg.Brokers)
	}
}

func TestLoadRedis_Disabled(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	cfg, err := LoadRedis()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.URL != "" {
		t.Fatalf("expected empty url, got %s", cfg.URL)
	}
}

func TestLoadRedis_WithOptionalFields(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_DIAL_TIMEOUT", "3s")
	t.Setenv("REDIS_READ_TIMEOUT", "4s")
	t.Setenv("REDIS_WRITE_TIMEOUT", "5s")
	t.Setenv("REDIS_POOL_SIZE", "9")
	t.Setenv("REDIS_MIN_IDLE_CONNS", "2")
	t.Setenv("REDIS_MAX_RETRIES", "3")
	t.Setenv("REDIS_HEALTHCHECK_TIMEOUT", "1s")
	t.Setenv("REDIS_ORDER_TTL", "2m")
	t.Setenv("REDIS_OTEL", "true")

	cfg, err := LoadRedis()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DialTimeout == nil || *cfg.DialTimeout != 3*time.Second {
		t.Fatalf("unexpected dial timeout: %v", cfg.DialTimeout)
	}
	if cfg.ReadTimeout == nil || *cfg.ReadTimeout != 4*time.Second {
		t.Fatalf("unexpected read timeout: %v", cfg.ReadTimeout)
	}
	if cfg.WriteTimeout == nil || *cfg.WriteTimeout != 5*time.Second {
		t.Fatalf("unexpected write timeout: %v", cfg.WriteTimeout)
	}
	if cfg.PoolSize == nil || *cfg.PoolSize != 9 {
		t.Fatalf("unexpected pool size: %v", cfg.PoolSize)
	}
	if cfg.MinIdleConns == nil || *cfg.MinIdleConns != 2 {
		t.Fatalf("unexpected min idle conns: %v", cfg.MinIdleConns)
	}
	if cfg.MaxRetries == nil || *cfg.MaxRetries != 3 {
		t.Fatalf("unexpected max retries: %v", cfg.MaxRetries)
	}
	if cfg.HealthcheckTimeout != time.Second {
		t.Fatalf("unexpected healthcheck timeout: %v", cfg.HealthcheckTimeout)
	}
	if cfg.OrderTTL != 2*time.Minute {
		t.Fatalf("unexpected order ttl: %v", cfg.OrderTTL)
	}
	if !cfg.EnableOTel {
		t.Fatalf("expected otel enabled")
	}
}

func TestLoadRedis_InvalidDuration(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_DIAL_TIMEOUT", "not-a-duration")

	if _, err := LoadRedis(); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestLoadRedisTLS_CertWithoutKey(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_TLS_CERT_FILE", "/tmp/cert.pem")
	t.Setenv("REDIS_TLS_KEY_FILE", "")

	if _, err := LoadRedis(); err == nil {
		t.Fatalf("expected error when cert is set without key")
	}
}
