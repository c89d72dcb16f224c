package config

import (
	"os"
	"testing"
	"time"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("setenv %s failed: %v", key, err)
	}
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	_ = os.Unsetenv(key)
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		}
	})
}

func TestLoadRequiresMySQLDSN(t *testing.T) {
	unsetEnv(t, "MYSQL_DSN")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing MYSQL_DSN")
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	setEnv(t, "MYSQL_DSN", "root:root@tcp(localhost:3306)/billing?parseTime=true")
	setEnv(t, "APP_SERVICE_NAME", "billing-test")
	setEnv(t, "HTTP_PORT", "8181")
	setEnv(t, "MYSQL_MAX_OPEN_CONNS", "20")
	setEnv(t, "MYSQL_MAX_IDLE_CONNS", "8")
	setEnv(t, "MYSQL_CONN_MAX_LIFETIME_MINUTES", "40")
	setEnv(t, "MIDTRANS_SERVER_KEY", "SB-Mid-server-testkey")
	setEnv(t, "MIDTRANS_IS_PRODUCTION", "true")
	setEnv(t, "MIDTRANS_HTTP_TIMEOUT_SECONDS", "20")
	setEnv(t, "BILLING_PROCESSING_TIMEOUT_SECONDS", "120")
	setEnv(t, "BILLING_PERIOD_DAYS", "14")
	setEnv(t, "BILLING_JOB_BATCH_SIZE", "99")
	setEnv(t, "BILLING_RECONCILE_INTERVAL_MINUTES", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.App.ServiceName != "billing-test" {
		t.Fatalf("unexpected app service name: %s", cfg.App.ServiceName)
	}
	if cfg.HTTP.Port != "8181" {
		t.Fatalf("unexpected http port: %s", cfg.HTTP.Port)
	}
	if cfg.MySQL.MaxOpenConns != 20 || cfg.MySQL.MaxIdleConns != 8 {
		t.Fatalf("unexpected mysql pool config: %+v", cfg.MySQL)
	}
	if cfg.MySQL.ConnMaxLifetime != 40*time.Minute {
		t.Fatalf("unexpected mysql lifetime: %v", cfg.MySQL.ConnMaxLifetime)
	}
	if !cfg.Midtrans.IsProduction || cfg.Midtrans.ServerKey != "SB-Mid-server-testkey" {
		t.Fatalf("unexpected midtrans config: %+v", cfg.Midtrans)
	}
	if cfg.Midtrans.HTTPTimeout != 20*time.Second {
		t.Fatalf("unexpected midtrans timeout: %v", cfg.Midtrans.HTTPTimeout)
	}
	if cfg.Billing.ProcessingTimeout != 120*time.Second {
		t.Fatalf("unexpected processing timeout: %v", cfg.Billing.ProcessingTimeout)
	}
	if cfg.Billing.PeriodLength != 14*24*time.Hour {
		t.Fatalf("unexpected period length: %v", cfg.Billing.PeriodLength)
	}
	if cfg.Billing.JobBatchSize != 99 {
		t.Fatalf("unexpected batch size: %d", cfg.Billing.JobBatchSize)
	}
	if cfg.Jobs.ReconcileInterval != 7*time.Minute {
		t.Fatalf("unexpected reconcile interval: %v", cfg.Jobs.ReconcileInterval)
	}
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	setEnv(t, "MYSQL_DSN", "root:root@tcp(localhost:3306)/billing?parseTime=true")
	unsetEnv(t, "APP_SERVICE_NAME")
	unsetEnv(t, "HTTP_HOST")
	unsetEnv(t, "HTTP_PORT")
	unsetEnv(t, "MIDTRANS_IS_PRODUCTION")
	unsetEnv(t, "BILLING_PROCESSING_TIMEOUT_SECONDS")
	unsetEnv(t, "BILLING_PERIOD_DAYS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.App.ServiceName != "billing-service" {
		t.Fatalf("unexpected default service name: %s", cfg.App.ServiceName)
	}
	if cfg.HTTP.Host != "0.0.0.0" || cfg.HTTP.Port != "8080" {
		t.Fatalf("unexpected default http config: %+v", cfg.HTTP)
	}
	if cfg.Midtrans.IsProduction {
		t.Fatal("expected sandbox by default")
	}
	if cfg.Billing.ProcessingTimeout != 90*time.Second {
		t.Fatalf("unexpected default processing timeout: %v", cfg.Billing.ProcessingTimeout)
	}
	if cfg.Billing.PeriodLength != 30*24*time.Hour {
		t.Fatalf("unexpected default period length: %v", cfg.Billing.PeriodLength)
	}
}
