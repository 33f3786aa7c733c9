package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server:      ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Analysis:    AnalysisConfig{ServiceURL: "http://localhost:8000", MaxResponseSize: 1024},
		Upload:      UploadConfig{MaxFileSize: 1},
		Session:     SessionConfig{CookieName: "s", IdleTTL: time.Minute, SweepInterval: time.Second},
		Rate:        RateLimitConfig{Enabled: true, RequestsPerMinute: 100},
		Logging:     LoggingConfig{Level: "info", Format: "text"},
		Diagnostics: DiagnosticsConfig{WebhookTimeout: time.Second},
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Analysis.ServiceURL != "http://localhost:8000" {
		t.Errorf("Analysis.ServiceURL = %q, want %q", cfg.Analysis.ServiceURL, "http://localhost:8000")
	}
	if cfg.Analysis.Timeout != 0 {
		t.Errorf("Analysis.Timeout = %v, want 0 (no timeout)", cfg.Analysis.Timeout)
	}
	if cfg.Upload.MaxFileSize != 52428800 {
		t.Errorf("Upload.MaxFileSize = %d, want %d", cfg.Upload.MaxFileSize, 52428800)
	}
	if cfg.Session.CookieName != "frondo_session" {
		t.Errorf("Session.CookieName = %q, want %q", cfg.Session.CookieName, "frondo_session")
	}
	if cfg.Session.IdleTTL != 30*time.Minute {
		t.Errorf("Session.IdleTTL = %v, want %v", cfg.Session.IdleTTL, 30*time.Minute)
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ANALYSIS_SERVICE_URL", "https://analysis.internal:8443")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.Analysis.ServiceURL != "https://analysis.internal:8443" {
		t.Errorf("Analysis.ServiceURL = %q", cfg.Analysis.ServiceURL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_AltEnvVar(t *testing.T) {
	os.Unsetenv("ANALYSIS_SERVICE_URL")
	t.Setenv("ANALYSIS_URL", "http://alt:9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Analysis.ServiceURL != "http://alt:9000" {
		t.Errorf("Analysis.ServiceURL = %q, want %q", cfg.Analysis.ServiceURL, "http://alt:9000")
	}
}

func TestLoad_Duration(t *testing.T) {
	t.Setenv("SERVER_READ_TIMEOUT", "45s")
	t.Setenv("ANALYSIS_TIMEOUT", "1m30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ReadTimeout != 45*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want %v", cfg.Server.ReadTimeout, 45*time.Second)
	}
	if cfg.Analysis.Timeout != 90*time.Second {
		t.Errorf("Analysis.Timeout = %v, want %v", cfg.Analysis.Timeout, 90*time.Second)
	}
}

func TestLoad_InvalidInteger(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for non-numeric SERVER_PORT")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("error should mention SERVER_PORT: %v", err)
	}
}

func TestLoad_CommaSeparatedSlice(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 172.16.0.0/12 , 192.168.0.0/16")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}
	if len(cfg.Security.TrustedProxies) != len(expected) {
		t.Fatalf("TrustedProxies length = %d, want %d", len(cfg.Security.TrustedProxies), len(expected))
	}
	for i, v := range expected {
		if cfg.Security.TrustedProxies[i] != v {
			t.Errorf("TrustedProxies[%d] = %q, want %q", i, cfg.Security.TrustedProxies[i], v)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"invalid port", func(c *Config) { c.Server.Port = 99999 }, "SERVER_PORT"},
		{"relative service url", func(c *Config) { c.Analysis.ServiceURL = "/api" }, "ANALYSIS_SERVICE_URL"},
		{"ftp service url", func(c *Config) { c.Analysis.ServiceURL = "ftp://host" }, "ANALYSIS_SERVICE_URL"},
		{"negative timeout", func(c *Config) { c.Analysis.Timeout = -time.Second }, "ANALYSIS_TIMEOUT"},
		{"negative max concurrent", func(c *Config) { c.Analysis.MaxConcurrent = -1 }, "ANALYSIS_MAX_CONCURRENT"},
		{"negative queue wait", func(c *Config) { c.Analysis.QueueWait = -time.Second }, "ANALYSIS_QUEUE_WAIT"},
		{"zero max file size", func(c *Config) { c.Upload.MaxFileSize = 0 }, "UPLOAD_MAX_FILE_SIZE"},
		{"zero idle ttl", func(c *Config) { c.Session.IdleTTL = 0 }, "SESSION_IDLE_TTL"},
		{"api key required without keys", func(c *Config) { c.Security.RequireAPIKey = true }, "API_KEYS"},
		{"bad webhook", func(c *Config) { c.Diagnostics.WebhookURL = "hook" }, "DIAGNOSTICS_WEBHOOK_URL"},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error mentioning %s", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %s: %v", tt.wantErr, err)
			}
		})
	}
}

func TestServerAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"", 8080, ":8080"},
		{"0.0.0.0", 8080, "0.0.0.0:8080"},
		{"127.0.0.1", 3000, "127.0.0.1:3000"},
	}

	for _, tt := range tests {
		cfg := &ServerConfig{Host: tt.host, Port: tt.port}
		if got := cfg.Addr(); got != tt.want {
			t.Errorf("Addr() with host=%q, port=%d = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestConfigString_MasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Analysis.APIToken = "sk-secret"
	cfg.Diagnostics.WebhookURL = "https://hooks.example.com/T0/abc"

	str := cfg.String()
	if strings.Contains(str, "sk-secret") || strings.Contains(str, "hooks.example.com") {
		t.Errorf("String() leaked a secret: %s", str)
	}
	if !strings.Contains(str, "MASKED") {
		t.Error("String() should contain MASKED placeholder")
	}
}

func mapLookup(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoadFrom_ByteSizes(t *testing.T) {
	cfg, err := LoadFrom(mapLookup(map[string]string{
		"UPLOAD_MAX_FILE_SIZE":       "10MiB",
		"ANALYSIS_MAX_RESPONSE_SIZE": "2048",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Upload.MaxFileSize != 10<<20 {
		t.Errorf("Upload.MaxFileSize = %d, want %d", cfg.Upload.MaxFileSize, 10<<20)
	}
	if cfg.Analysis.MaxResponseSize != 2048 {
		t.Errorf("Analysis.MaxResponseSize = %d, want 2048", cfg.Analysis.MaxResponseSize)
	}
}

func TestLoadFrom_ReportsEveryBadValue(t *testing.T) {
	_, err := LoadFrom(mapLookup(map[string]string{
		"SERVER_PORT":          "eighty",
		"UPLOAD_MAX_FILE_SIZE": "lots",
		"RATE_LIMIT_ENABLED":   "maybe",
	}))
	if err == nil {
		t.Fatal("LoadFrom() expected error")
	}
	for _, name := range []string{"SERVER_PORT", "UPLOAD_MAX_FILE_SIZE", "RATE_LIMIT_ENABLED"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should mention %s: %v", name, err)
		}
	}
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1024", 1024, false},
		{"512B", 512, false},
		{"1KB", 1000, false},
		{"1kib", 1024, false},
		{"50MiB", 50 << 20, false},
		{" 2 GB ", 2_000_000_000, false},
		{"1GiB", 1 << 30, false},
		{"", 0, true},
		{"-1", 0, true},
		{"ten", 0, true},
		{"9223372036854775807GiB", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseByteSize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseByteSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
