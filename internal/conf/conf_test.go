package conf

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

const sampleYAML = `
server:
  http:
    addr: 0.0.0.0:9000
    timeout: 30s
data:
  database:
    driver: postgres
    source: "${POSTGUARD_TEST_DSN:postgres://localhost/postguard}"
moderation:
  threshold: 0.4
  image_timeout: 3s
  frame_interval: 2
  detector:
    transport: http
    addr: http://nudenet:8080
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("POSTGUARD_TEST_DSN", "postgres://db:5432/pg")
	bc, err := Load(writeConfig(t, sampleYAML), log.DefaultLogger)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if bc.Server.HTTP.Addr != "0.0.0.0:9000" || bc.Server.HTTP.Timeout.AsDuration() != 30*time.Second {
		t.Errorf("Unexpected server config %+v", bc.Server.HTTP)
	}
	if bc.Data.Database.Source != "postgres://db:5432/pg" {
		t.Errorf("Expected env placeholder to resolve, got %q", bc.Data.Database.Source)
	}
	m := bc.Moderation
	if !m.IsEnabled() {
		t.Error("Expected moderation enabled by default")
	}
	if m.Threshold != 0.4 || m.ImageTimeout.AsDuration() != 3*time.Second || m.FrameInterval.AsDuration() != 2*time.Second {
		t.Errorf("Unexpected moderation config %+v", m)
	}
	if m.Detector.Transport != "http" || m.OnUnavailable != "reject" || m.MaxImages != 5 {
		t.Errorf("Unexpected detector/defaults %+v %+v", m.Detector, m)
	}
	if bc.Queue.MaxRetry != 3 || bc.Storage.URLTTL.AsDuration() != time.Hour {
		t.Errorf("Expected defaults for queue/storage, got %+v %+v", bc.Queue, bc.Storage)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "moderation:\n  enabled: true\n")

	t.Setenv(EnvModerationEnabled, "false")
	bc, err := Load(path, log.DefaultLogger)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if bc.Moderation.IsEnabled() {
		t.Error("Expected env var to disable moderation")
	}

	t.Setenv(EnvModerationEnabled, "maybe")
	if _, err := Load(path, log.DefaultLogger); err == nil {
		t.Error("Expected error for unparsable override")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), log.DefaultLogger); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{`"1m30s"`, 90 * time.Second, false},
		{`5`, 5 * time.Second, false},
		{`0.5`, 500 * time.Millisecond, false},
		{`null`, 0, false},
		{`"soon"`, 0, true},
		{`true`, 0, true},
	}
	for _, tt := range tests {
		var d Duration
		err := json.Unmarshal([]byte(tt.in), &d)
		if (err != nil) != tt.wantErr {
			t.Errorf("Unmarshal(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && d.AsDuration() != tt.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, d.AsDuration(), tt.want)
		}
	}
}
