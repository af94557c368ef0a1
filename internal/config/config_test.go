package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "DATABASE_URL", "API_USERNAME", "API_PASSWORD", "KAFKA_BROKERS", "OTLP_ENDPOINT", "STORE_BREAKERS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.APIUsername != "admin" || cfg.APIPassword != "adminpass" {
		t.Errorf("unexpected default credentials: %q/%q", cfg.APIUsername, cfg.APIPassword)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "localhost:9092" {
		t.Errorf("unexpected default brokers: %v", cfg.KafkaBrokers)
	}
	if !cfg.BreakersEnabled {
		t.Error("expected breakers enabled by default")
	}
	if cfg.IsProduction() {
		t.Error("expected non-production default")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "production")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("STORE_BREAKERS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("expected port 9000, got %q", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Error("expected production environment")
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "broker-2:9092" {
		t.Errorf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
	if cfg.BreakersEnabled {
		t.Error("expected breakers disabled")
	}
}

func TestLoadInvalidBool(t *testing.T) {
	t.Setenv("STORE_BREAKERS", "not-a-bool")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !cfg.BreakersEnabled {
		t.Error("expected fallback to default on unparsable value")
	}
}
