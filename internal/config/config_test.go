package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/scriptserv/internal/protocol"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 5721, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.Workers)
	assert.Equal(t, 0, cfg.Server.Backlog)
	assert.Equal(t, 64<<10, cfg.Server.MaxHeaderBytes)
	assert.Equal(t, protocol.DefaultMaxHeaderBytes, cfg.Server.MaxHeaderBytes)
	assert.Equal(t, 600*time.Second, cfg.Session.Timeout)
	assert.Equal(t, 300*time.Second, cfg.Session.SweepInterval)
	assert.Equal(t, "sid", cfg.Session.CookieName)
	assert.Equal(t, "./webroot", cfg.Documents.Root)
	assert.Equal(t, []string{".smscr"}, cfg.Documents.TemplateExtensions)
	assert.Equal(t, "application/octet-stream", cfg.Documents.DefaultMime)
	assert.Equal(t, "UTF-8", cfg.Documents.Encoding)
	assert.False(t, cfg.Admin.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Nil(t, cfg.RouteTable())
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(v *viper.Viper)
		expectError bool
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "custom server settings",
			setup: func(v *viper.Viper) {
				v.Set("server.port", 8080)
				v.Set("server.workers", 4)
				v.Set("server.backlog", 16)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 4, cfg.Server.Workers)
				assert.Equal(t, 16, cfg.Server.Backlog)
			},
		},
		{
			name: "durations from strings",
			setup: func(v *viper.Viper) {
				v.Set("session.timeout", "90s")
				v.Set("server.read_timeout", "2m")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 90*time.Second, cfg.Session.Timeout)
				assert.Equal(t, 2*time.Minute, cfg.Server.ReadTimeout)
			},
		},
		{
			name: "extensions are normalized",
			setup: func(v *viper.Viper) {
				v.Set("documents.template_extensions", "SMSCR, .tpl")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{".smscr", ".tpl"}, cfg.Documents.TemplateExtensions)
			},
		},
		{
			name:        "port out of range",
			setup:       func(v *viper.Viper) { v.Set("server.port", 70000) },
			expectError: true,
		},
		{
			name:        "zero workers",
			setup:       func(v *viper.Viper) { v.Set("server.workers", 0) },
			expectError: true,
		},
		{
			name:        "negative timeout",
			setup:       func(v *viper.Viper) { v.Set("session.timeout", "-1s") },
			expectError: true,
		},
		{
			name:        "empty root",
			setup:       func(v *viper.Viper) { v.Set("documents.root", "  ") },
			expectError: true,
		},
		{
			name:        "unknown encoding",
			setup:       func(v *viper.Viper) { v.Set("documents.encoding", "klingon-8") },
			expectError: true,
		},
		{
			name:        "bad log level",
			setup:       func(v *viper.Viper) { v.Set("logging.level", "loud") },
			expectError: true,
		},
		{
			name:        "invalid port type",
			setup:       func(v *viper.Viper) { v.Set("server.port", "invalid_port") },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			tt.setup(v)

			cfg, err := LoadFrom(v)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestConfigureReadsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "scriptserv.yml")
	yaml := `
server:
  port: 9000
  domain: www.example.com
session:
  timeout: 45s
documents:
  root: ./site
  mime_types:
    SMSCR: text/plain
routes:
  - path: /hi
    worker: HelloWorker
  - path: /sum
    worker: SumWorker
admin:
  enabled: true
  addr: 127.0.0.1:9001
`
	require.NoError(t, os.WriteFile(file, []byte(yaml), 0o644))

	v := viper.New()
	require.NoError(t, Configure(v, file))
	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "www.example.com", cfg.Server.Domain)
	assert.Equal(t, 45*time.Second, cfg.Session.Timeout)
	assert.Equal(t, "./site", cfg.Documents.Root)
	assert.Equal(t, "text/plain", cfg.Documents.MimeTypes["smscr"])
	assert.Equal(t, map[string]string{"/hi": "HelloWorker", "/sum": "SumWorker"}, cfg.RouteTable())
	assert.True(t, cfg.Admin.Enabled)
}

func TestConfigureMissingFile(t *testing.T) {
	v := viper.New()
	assert.Error(t, Configure(v, filepath.Join(t.TempDir(), "nope.yml")))
}

func TestConfigureWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	v := viper.New()
	require.NoError(t, Configure(v, ""))
	_, err := LoadFrom(v)
	require.NoError(t, err)
}

func TestLoadWithEnvironment(t *testing.T) {
	t.Setenv("SCRIPTSERV_SERVER_PORT", "9999")
	t.Setenv("SCRIPTSERV_SESSION_COOKIE_NAME", "token")
	t.Setenv("SCRIPTSERV_DOCUMENTS_TEMPLATE_EXTENSIONS", ".smscr,.tmpl")
	t.Chdir(t.TempDir())

	v := viper.New()
	require.NoError(t, Configure(v, ""))
	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "token", cfg.Session.CookieName)
	assert.Equal(t, []string{".smscr", ".tmpl"}, cfg.Documents.TemplateExtensions)
}

func TestValidateAdminCollision(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	cfg.Admin.Enabled = true
	cfg.Admin.Addr = "0.0.0.0:5721"
	result := Validate(cfg)
	require.True(t, result.HasErrors())
	assert.Equal(t, "admin.addr", result.Errors[0].Field)
	assert.Contains(t, result.String(), "collides")

	cfg.Admin.Addr = "not-an-address"
	assert.True(t, Validate(cfg).HasErrors())
}

func TestValidateWarnings(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	cfg.Server.Port = 80
	cfg.Routes = []RouteConfig{{Path: "/a", Worker: "X"}, {Path: "/a", Worker: "Y"}}
	result := Validate(cfg)
	assert.False(t, result.HasErrors())
	assert.True(t, result.HasWarnings())
	assert.Len(t, result.Warnings, 2)
	assert.NoError(t, result.Err())
}

func TestValidateRoutes(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	cfg.Routes = []RouteConfig{{Path: "hello", Worker: ""}}
	result := Validate(cfg)
	assert.Len(t, result.Errors, 2)
	assert.Error(t, result.Err())
}
