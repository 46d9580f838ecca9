package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		raw     string
		want    OutputFormat
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestPrint_FormatSelection(t *testing.T) {
	payload := map[string]string{"id": "checkout-cta"}

	var buf bytes.Buffer
	if err := Print(&buf, payload, FormatJSON, nil); err != nil {
		t.Fatalf("Print json: %v", err)
	}
	if !strings.Contains(buf.String(), `"id": "checkout-cta"`) {
		t.Errorf("json output = %q", buf.String())
	}

	buf.Reset()
	if err := Print(&buf, payload, FormatYAML, nil); err != nil {
		t.Fatalf("Print yaml: %v", err)
	}
	if !strings.Contains(buf.String(), "id: checkout-cta") {
		t.Errorf("yaml output = %q", buf.String())
	}

	// Table format falls back to the caller-supplied renderer.
	called := false
	err := Print(&buf, payload, FormatTable, func() error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Errorf("table fallback not invoked (err=%v)", err)
	}
}

func TestResolveServer(t *testing.T) {
	t.Setenv("GUIDEKIT_SERVER", "")
	t.Setenv("GUIDEKIT_API_KEY", "")

	if _, err := ResolveServer("", ""); err == nil {
		t.Error("expected error with no server configured")
	}

	cfg, err := ResolveServer("http://localhost:8080/", "key-1")
	if err != nil {
		t.Fatalf("ResolveServer: %v", err)
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.BaseURL)
	}

	t.Setenv("GUIDEKIT_SERVER", "http://env-server:9000")
	t.Setenv("GUIDEKIT_API_KEY", "env-key")
	cfg, err = ResolveServer("", "")
	if err != nil {
		t.Fatalf("ResolveServer from env: %v", err)
	}
	if cfg.BaseURL != "http://env-server:9000" || cfg.APIKey != "env-key" {
		t.Errorf("env config = %+v", cfg)
	}

	// Flags win over environment variables.
	cfg, _ = ResolveServer("http://flag-server", "flag-key")
	if cfg.BaseURL != "http://flag-server" || cfg.APIKey != "flag-key" {
		t.Errorf("flag precedence broken: %+v", cfg)
	}
}
