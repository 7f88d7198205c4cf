package config

import (
	"reflect"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Server timeouts / sizes (valid)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging / Docs
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v1/") // no leading slash + trailing slash -> "/api/v1"

	// App
	t.Setenv("DB_PATH", "db.sqlite")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("LLM_MODEL", "claude-test")
	t.Setenv("LLM_MAX_TOKENS", "512")
	t.Setenv("LLM_TIMEOUT", "30s")

	// Policy
	t.Setenv("TURN_RATE_MAX", "10")
	t.Setenv("TURN_RATE_WINDOW", "30s")
	t.Setenv("FREE_INVOICE_LIMIT", "3")
	t.Setenv("MAX_PROMPT_RUNES", "1500")
	t.Setenv("MAX_MESSAGES", "50")

	// Edge rate limiting (invalid values fall back to defaults)
	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	// Idempotency
	t.Setenv("IDEMPOTENCY_TTL", "48h")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" || cfg.ReadTimeout != 2*time.Second || cfg.MaxHeaderBytes != 8192 {
		t.Fatalf("server settings mismatch: %+v", cfg)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("GinMode normalization failed: %q", cfg.GinMode)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled {
		t.Fatalf("logging settings mismatch: %+v", cfg)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("APIBasePath normalization failed: %q", cfg.APIBasePath)
	}
	if cfg.DBPath != "db.sqlite" {
		t.Fatalf("DBPath mismatch: %q", cfg.DBPath)
	}
	if cfg.LLM.APIKey != "sk-test" || cfg.LLM.Model != "claude-test" ||
		cfg.LLM.MaxTokens != 512 || cfg.LLM.Timeout != 30*time.Second {
		t.Fatalf("LLM settings mismatch: %+v", cfg.LLM)
	}
	wantPolicy := PolicyConfig{
		TurnRateMax:      10,
		TurnRateWindow:   30 * time.Second,
		FreeInvoiceLimit: 3,
		MaxPromptRunes:   1500,
		MaxMessages:      50,
	}
	if cfg.Policy != wantPolicy {
		t.Fatalf("policy settings mismatch: %+v", cfg.Policy)
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate fallback mismatch: rps=%v burst=%d", cfg.RateRPS, cfg.RateBurst)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("CORS parse mismatch: %+v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security settings mismatch: %+v", cfg.Security)
	}
	if cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("IdempotencyTTL mismatch: %v", cfg.IdempotencyTTL)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure ||
		cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("OTEL settings mismatch: %+v", cfg.OTEL)
	}
}

// --- policy defaults ---

func TestLoad_PolicyDefaults(t *testing.T) {
	// Blank out any ambient overrides so the defaults apply.
	for _, k := range []string{"TURN_RATE_MAX", "TURN_RATE_WINDOW", "FREE_INVOICE_LIMIT",
		"MAX_PROMPT_RUNES", "MAX_MESSAGES", "LOG_LEVEL", "GIN_MODE"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := PolicyConfig{
		TurnRateMax:      100,
		TurnRateWindow:   time.Hour,
		FreeInvoiceLimit: 5,
		MaxPromptRunes:   2000,
		MaxMessages:      100,
	}
	if cfg.Policy != want {
		t.Fatalf("policy defaults mismatch: %+v", cfg.Policy)
	}
}

// --- validation failures ---

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"empty model", map[string]string{"LLM_MODEL": " "}},
		{"bad max tokens", map[string]string{"LLM_MAX_TOKENS": "-1"}},
		{"bad free limit", map[string]string{"FREE_INVOICE_LIMIT": "0"}},
		{"bad turn max", map[string]string{"TURN_RATE_MAX": "0"}},
		{"bad prompt runes", map[string]string{"MAX_PROMPT_RUNES": "0"}},
		{"bad max messages", map[string]string{"MAX_MESSAGES": "-2"}},
		{"bad rate burst", map[string]string{"RATE_BURST": "0"}},
		{"bad rate rps", map[string]string{"RATE_RPS": "-1"}},
		{"bad sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}},
		{"bad max header bytes", map[string]string{"MAX_HEADER_BYTES": "-5"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":        "/",
		"/":       "/",
		"api":     "/api",
		"/api/":   "/api",
		"api/v2/": "/api/v2",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
