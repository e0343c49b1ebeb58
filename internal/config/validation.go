package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/conneroisu/scriptserv/internal/logging"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// Err joins all errors, or returns nil.
func (vr *ValidationResult) Err() error {
	errs := make([]error, len(vr.Errors))
	for i := range vr.Errors {
		errs[i] = &vr.Errors[i]
	}
	return errors.Join(errs...)
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var b strings.Builder
	write := func(title string, list []ValidationError) {
		if len(list) == 0 {
			return
		}
		b.WriteString(title + ":\n")
		for _, e := range list {
			fmt.Fprintf(&b, "  - %s: %s\n", e.Field, e.Message)
			for _, s := range e.Suggestions {
				fmt.Fprintf(&b, "    hint: %s\n", s)
			}
		}
	}
	write("Errors", vr.Errors)
	write("Warnings", vr.Warnings)
	return b.String()
}

func (vr *ValidationResult) fail(field string, value interface{}, msg string, hints ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: msg, Suggestions: hints})
}

func (vr *ValidationResult) warn(field string, value interface{}, msg string, hints ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg, Suggestions: hints})
}

// Validate checks ranges and cross-field constraints.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}
	validateServer(&cfg.Server, result)
	validateSession(&cfg.Session, result)
	validateDocuments(&cfg.Documents, result)
	validateRoutes(cfg.Routes, result)
	validateAdmin(cfg, result)
	validateLogging(&cfg.Logging, result)
	return result
}

func validateServer(s *ServerConfig, result *ValidationResult) {
	// Port 0 asks the kernel for a free port.
	if s.Port < 0 || s.Port > 65535 {
		result.fail("server.port", s.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", s.Port),
			"Use a port between 1024-65535 for non-privileged access")
	} else if s.Port > 0 && s.Port < 1024 {
		result.warn("server.port", s.Port, "port below 1024 requires elevated privileges")
	}
	if strings.ContainsAny(s.Host, ";&|$`()<>\"'\\ ") {
		result.fail("server.host", s.Host, "host contains invalid characters")
	}
	if s.Workers <= 0 {
		result.fail("server.workers", s.Workers, "workers must be positive")
	}
	if s.Backlog < 0 {
		result.fail("server.backlog", s.Backlog, "backlog must not be negative", "Use 0 for an unbounded backlog")
	}
	if s.MaxConnections < 0 {
		result.fail("server.max_connections", s.MaxConnections, "max_connections must not be negative")
	}
	if s.ReadTimeout <= 0 {
		result.fail("server.read_timeout", s.ReadTimeout, "read_timeout must be positive")
	}
	if s.WriteTimeout <= 0 {
		result.fail("server.write_timeout", s.WriteTimeout, "write_timeout must be positive")
	}
	if s.MaxHeaderBytes < 256 {
		result.fail("server.max_header_bytes", s.MaxHeaderBytes, "max_header_bytes must be at least 256")
	}
}

func validateSession(s *SessionConfig, result *ValidationResult) {
	if s.Timeout <= 0 {
		result.fail("session.timeout", s.Timeout, "timeout must be positive")
	}
	if s.SweepInterval <= 0 {
		result.fail("session.sweep_interval", s.SweepInterval, "sweep_interval must be positive")
	}
	if s.CookieName == "" || strings.ContainsAny(s.CookieName, "=;, \t\"") {
		result.fail("session.cookie_name", s.CookieName, "cookie_name must be a non-empty token")
	}
}

func validateDocuments(d *DocumentsConfig, result *ValidationResult) {
	if strings.TrimSpace(d.Root) == "" {
		result.fail("documents.root", d.Root, "document root must not be empty")
	}
	if len(d.TemplateExtensions) == 0 {
		result.warn("documents.template_extensions", d.TemplateExtensions, "no template extensions, every file is served as-is")
	}
	for _, ext := range d.TemplateExtensions {
		if ext == "" || ext == "." || strings.ContainsAny(ext, "/\\") {
			result.fail("documents.template_extensions", ext, fmt.Sprintf("invalid extension %q", ext))
		}
	}
	if d.DefaultMime == "" || !strings.Contains(d.DefaultMime, "/") {
		result.fail("documents.default_mime", d.DefaultMime, "default_mime must look like type/subtype")
	}
	for ext, mime := range d.MimeTypes {
		if !strings.Contains(mime, "/") {
			result.fail("documents.mime_types."+ext, mime, "MIME type must look like type/subtype")
		}
	}
	if d.Encoding != "" {
		if _, err := htmlindex.Get(d.Encoding); err != nil {
			result.fail("documents.encoding", d.Encoding, "unknown character encoding",
				"Use a WHATWG encoding label such as UTF-8 or windows-1250")
		}
	}
}

func validateRoutes(routes []RouteConfig, result *ValidationResult) {
	seen := make(map[string]bool, len(routes))
	for i, r := range routes {
		field := fmt.Sprintf("routes[%d]", i)
		if !strings.HasPrefix(r.Path, "/") {
			result.fail(field+".path", r.Path, "route path must start with /")
		}
		if r.Worker == "" {
			result.fail(field+".worker", r.Worker, "route needs a worker name")
		}
		if seen[r.Path] {
			result.warn(field+".path", r.Path, "duplicate route, the last one wins")
		}
		seen[r.Path] = true
	}
}

func validateAdmin(cfg *Config, result *ValidationResult) {
	if !cfg.Admin.Enabled {
		return
	}
	host, port, err := net.SplitHostPort(cfg.Admin.Addr)
	if err != nil {
		result.fail("admin.addr", cfg.Admin.Addr, "admin address must be host:port")
		return
	}
	if host == cfg.Server.Host && port == fmt.Sprint(cfg.Server.Port) && port != "0" {
		result.fail("admin.addr", cfg.Admin.Addr, "admin address collides with the server address")
	}
}

func validateLogging(l *LoggingConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(l.Level); err != nil {
		result.fail("logging.level", l.Level, err.Error(), "Use debug, info, warn or error")
	}
	if l.Format != "text" && l.Format != "json" {
		result.fail("logging.format", l.Format, "format must be text or json")
	}
}
