package config

import (
	"os"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.toml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad(t *testing.T) {
	validTOML := `
[profile.work]
host = "imap.example.com"
port = 993
tls = true
username = "reader1"
password = "pass1"
mechanism = "PLAIN"

[profile.personal]
host = "mail.example.org"
port = 143
starttls = true
username = "reader2"
password = "pass2"
idle_timeout = "10m"
`

	tests := []struct {
		name    string
		content string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "valid config",
			content: validTOML,
			check: func(t *testing.T, cfg *Config) {
				if len(cfg.Profiles) != 2 {
					t.Fatalf("len(Profiles) = %d, want 2", len(cfg.Profiles))
				}
				p, ok := cfg.Lookup("work")
				if !ok {
					t.Fatal("Lookup(work) = false, want true")
				}
				if p.Addr() != "imap.example.com:993" {
					t.Errorf("Addr() = %q, want %q", p.Addr(), "imap.example.com:993")
				}
				if !p.TLS {
					t.Error("work profile TLS = false, want true")
				}
			},
		},
		{
			name: "missing host",
			content: `
[profile.broken]
port = 993
`,
			wantErr: true,
		},
		{
			name: "missing port",
			content: `
[profile.broken]
host = "imap.example.com"
`,
			wantErr: true,
		},
		{
			name: "tls and starttls both set",
			content: `
[profile.broken]
host = "imap.example.com"
port = 993
tls = true
starttls = true
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, tt.content)
			cfg, err := Load(path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Load() error = nil, want non-nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.toml"); err == nil {
		t.Fatal("Load() error = nil, want non-nil")
	}
}

func TestLookupMissingProfile(t *testing.T) {
	cfg := &Config{Profiles: map[string]Profile{}}
	if _, ok := cfg.Lookup("missing"); ok {
		t.Fatal("Lookup(missing) = true, want false")
	}
}
