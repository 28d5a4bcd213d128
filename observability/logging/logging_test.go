package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(&buf, Options{Service: "treasuryd", Env: "test", Level: "debug"})
	logger.Debug("ledger committed", slog.Uint64("sequence", 7))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["service"] != "treasuryd" || line["env"] != "test" {
		t.Fatalf("missing service attributes: %v", line)
	}
	if line["severity"] != "DEBUG" || line["message"] != "ledger committed" {
		t.Fatalf("unexpected renamed keys: %v", line)
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("expected timestamp key: %v", line)
	}
}

func TestSetupRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(&buf, Options{Service: "treasuryd", Level: "warn"})
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info line emitted at warn level: %s", buf.String())
	}
}

func TestSetupMirrorsToRotatedFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "treasuryd.log")
	logger := setup(&buf, Options{Service: "treasuryd", File: path})
	logger.Info("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"message":"hello"`) {
		t.Fatalf("file missing log line: %s", data)
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("token", "secret").Value.String(); got != RedactedValue {
		t.Fatalf("expected token to be redacted, got %q", got)
	}
	if got := MaskField("Authorization", "Bearer abc").Value.String(); got != RedactedValue {
		t.Fatalf("expected authorization header to be redacted, got %q", got)
	}
	if got := MaskField("caller", "0xabc").Value.String(); got != "0xabc" {
		t.Fatalf("expected caller to pass through, got %q", got)
	}
	if got := MaskField("token", "").Value.String(); got != "" {
		t.Fatalf("expected empty values to stay empty, got %q", got)
	}
}

func TestHandlerRedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(&buf, Options{Service: "treasuryd"})
	logger.Info("audit store opened", "dsn", "postgres://treasury:hunter2@db/audit", "jwt_secret", "abc", "proposal", 3)

	out := buf.String()
	if strings.Contains(out, "hunter2") || strings.Contains(out, `"abc"`) {
		t.Fatalf("credentials leaked into log line: %s", out)
	}
	if !strings.Contains(out, `"proposal":3`) {
		t.Fatalf("expected non-sensitive attributes to survive: %s", out)
	}
}
