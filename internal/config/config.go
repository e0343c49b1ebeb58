// Package config loads scriptserv settings with Viper from a YAML file,
// SCRIPTSERV_ environment variables and command-line flags.
//
// Every key has a default, so an empty configuration describes a working
// server on port 5721 that serves ./webroot.
package config

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/scriptserv/internal/protocol"
)

// EnvPrefix is the prefix of environment overrides, e.g. SCRIPTSERV_SERVER_PORT.
const EnvPrefix = "SCRIPTSERV"

// FileName is the configuration file looked up in the working directory.
const FileName = ".scriptserv.yml"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"    yaml:"server"`
	Session   SessionConfig   `mapstructure:"session"   yaml:"session"`
	Documents DocumentsConfig `mapstructure:"documents" yaml:"documents"`
	Routes    []RouteConfig   `mapstructure:"routes"    yaml:"routes"`
	Admin     AdminConfig     `mapstructure:"admin"     yaml:"admin"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
}

type ServerConfig struct {
	Host   string `mapstructure:"host"   yaml:"host"`
	Port   int    `mapstructure:"port"   yaml:"port"`
	Domain string `mapstructure:"domain" yaml:"domain"`
	// Workers is the size of the request-processing pool.
	Workers int `mapstructure:"workers" yaml:"workers"`
	// Backlog bounds queued connections; 0 means unbounded.
	Backlog        int           `mapstructure:"backlog"          yaml:"backlog"`
	MaxConnections int           `mapstructure:"max_connections"  yaml:"max_connections"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"     yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"    yaml:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes" yaml:"max_header_bytes"`
	ReusePort      bool          `mapstructure:"reuse_port"       yaml:"reuse_port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type SessionConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"        yaml:"timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	CookieName    string        `mapstructure:"cookie_name"    yaml:"cookie_name"`
}

type DocumentsConfig struct {
	Root               string            `mapstructure:"root"                yaml:"root"`
	TemplateExtensions []string          `mapstructure:"template_extensions" yaml:"template_extensions"`
	DefaultMime        string            `mapstructure:"default_mime"        yaml:"default_mime"`
	MimeTypes          map[string]string `mapstructure:"mime_types"          yaml:"mime_types"`
	// Watch drops cached templates when their files change.
	Watch    bool   `mapstructure:"watch"    yaml:"watch"`
	Encoding string `mapstructure:"encoding" yaml:"encoding"`
}

// RouteConfig maps a request path to a worker name.
type RouteConfig struct {
	Path   string `mapstructure:"path"   yaml:"path"`
	Worker string `mapstructure:"worker" yaml:"worker"`
}

type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr"    yaml:"addr"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"    yaml:"level"`
	Format  string `mapstructure:"format"   yaml:"format"`
	FileDir string `mapstructure:"file_dir" yaml:"file_dir"`
}

var defaults = map[string]interface{}{
	"server.host":             "0.0.0.0",
	"server.port":             5721,
	"server.domain":           "",
	"server.workers":          10,
	"server.backlog":          0,
	"server.max_connections":  0,
	"server.read_timeout":     30 * time.Second,
	"server.write_timeout":    30 * time.Second,
	"server.max_header_bytes": protocol.DefaultMaxHeaderBytes,
	"server.reuse_port":       false,

	"session.timeout":        600 * time.Second,
	"session.sweep_interval": 300 * time.Second,
	"session.cookie_name":    "sid",

	"documents.root":                "./webroot",
	"documents.template_extensions": []string{".smscr"},
	"documents.default_mime":        "application/octet-stream",
	"documents.watch":               true,
	"documents.encoding":            "UTF-8",

	"admin.enabled": false,
	"admin.addr":    "127.0.0.1:5722",

	"logging.level":    "info",
	"logging.format":   "text",
	"logging.file_dir": "",
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v.SetDefault(k, defaults[k])
	}
}

// Configure prepares v to read SCRIPTSERV_ environment variables and the
// config file, then reads the file. An empty file means FileName in the
// working directory, which may be absent.
func Configure(v *viper.Viper, file string) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(strings.TrimSuffix(FileName, ".yml"))
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// Load builds a Config from the global Viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom builds and validates a Config from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	// Slices set from env or flags arrive as a single string.
	if exts := v.GetStringSlice("documents.template_extensions"); len(exts) > 0 {
		cfg.Documents.TemplateExtensions = splitList(exts)
	}
	cfg.normalize()

	if result := Validate(&cfg); result.HasErrors() {
		return nil, fmt.Errorf("invalid configuration: %w", result.Err())
	}
	return &cfg, nil
}

// RouteTable returns the routes as a path to worker map. Later entries win.
func (c *Config) RouteTable() map[string]string {
	if len(c.Routes) == 0 {
		return nil
	}
	table := make(map[string]string, len(c.Routes))
	for _, r := range c.Routes {
		table[r.Path] = r.Worker
	}
	return table
}

func (c *Config) normalize() {
	for i, ext := range c.Documents.TemplateExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Documents.TemplateExtensions[i] = ext
	}
	if len(c.Documents.MimeTypes) > 0 {
		mimes := make(map[string]string, len(c.Documents.MimeTypes))
		for ext, mime := range c.Documents.MimeTypes {
			mimes[strings.TrimPrefix(strings.ToLower(ext), ".")] = mime
		}
		c.Documents.MimeTypes = mimes
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
}

func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, part)
		}
	}
	return out
}
