package app

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerTagsServiceInJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{AppEnv: "development", LogFormat: "json"})

	logger.Info("startup")
	if !strings.Contains(buf.String(), `"service":"meshgate"`) {
		t.Fatalf("expected service attribute in output, got %q", buf.String())
	}
}

func TestProductionLoggerSuppressesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{AppEnv: "production"})

	logger.Debug("noise")
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be filtered in production, got %q", buf.String())
	}

	logger.Info("signal")
	out := buf.String()
	if !strings.HasPrefix(out, "{") {
		t.Fatalf("expected JSON output in production, got %q", out)
	}
	if !strings.Contains(out, `"msg":"signal"`) {
		t.Fatalf("expected info record, got %q", out)
	}
}

func TestDevelopmentLoggerUsesTextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{AppEnv: "development", LogFormat: "pretty"})

	logger.Debug("trace detail")
	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Fatalf("expected text output in development, got %q", out)
	}
	if !strings.Contains(out, "trace detail") {
		t.Fatalf("expected debug record in development, got %q", out)
	}
}
