package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// StandardFlags provides consistent flag definitions across commands
type StandardFlags struct {
	// Server flags
	Port    int
	Host    string
	Root    string
	Workers int

	// Output flags
	OutputFormat string
	Quiet        bool

	bindings map[string]string
}

// AddStandardFlags adds standard flags to a command. Server flags are bound
// to their configuration keys when the command runs, so they override the
// file and environment.
func AddStandardFlags(cmd *cobra.Command, flagTypes ...string) *StandardFlags {
	flags := &StandardFlags{bindings: map[string]string{}}

	for _, flagType := range flagTypes {
		switch flagType {
		case "server":
			addServerFlags(cmd, flags)
		case "root":
			addRootFlag(cmd, flags)
		case "output":
			addOutputFlags(cmd, flags)
		}
	}

	if len(flags.bindings) > 0 {
		next := cmd.PreRunE
		cmd.PreRunE = func(c *cobra.Command, args []string) error {
			bindFlags(c.Flags(), flags.bindings)
			if next != nil {
				return next(c, args)
			}
			return nil
		}
	}

	return flags
}

func addServerFlags(cmd *cobra.Command, flags *StandardFlags) {
	fs := cmd.Flags()
	fs.IntVarP(&flags.Port, "port", "p", 5721, "Port to serve on")
	fs.StringVar(&flags.Host, "host", "0.0.0.0", "Host to bind to")
	fs.IntVarP(&flags.Workers, "workers", "w", 10, "Number of request workers")
	addRootFlag(cmd, flags)

	flags.bindings["server.port"] = "port"
	flags.bindings["server.host"] = "host"
	flags.bindings["server.workers"] = "workers"
}

func addRootFlag(cmd *cobra.Command, flags *StandardFlags) {
	fs := cmd.Flags()
	if fs.Lookup("root") != nil {
		return
	}
	fs.StringVarP(&flags.Root, "root", "r", "./webroot", "Document root")
	flags.bindings["documents.root"] = "root"
}

func addOutputFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.OutputFormat, "format", "f", "text", "Output format (text|json|yaml)")
	cmd.Flags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress output")
}

// bindFlags binds configuration keys to flags of fs.
func bindFlags(fs *pflag.FlagSet, bindings map[string]string) {
	keys := make([]string, 0, len(bindings))
	for k := range bindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if f := fs.Lookup(bindings[key]); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}

// ValidateFormat reports whether format is one of allowed.
func ValidateFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return fmt.Errorf("unsupported format: %s (supported: %s)", format, strings.Join(allowed, ", "))
}

// paramsFlag collects repeated key=value flags.
type paramsFlag struct {
	values map[string]string
	order  []string
}

var _ pflag.Value = (*paramsFlag)(nil)

func newParamsFlag() *paramsFlag {
	return &paramsFlag{values: map[string]string{}}
}

func (p *paramsFlag) String() string {
	parts := make([]string, 0, len(p.order))
	for _, k := range p.order {
		parts = append(parts, k+"="+p.values[k])
	}
	return strings.Join(parts, ",")
}

func (p *paramsFlag) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	if _, seen := p.values[name]; !seen {
		p.order = append(p.order, name)
	}
	p.values[name] = value
	return nil
}

func (p *paramsFlag) Type() string { return "name=value" }

// Map returns the collected parameters.
func (p *paramsFlag) Map() map[string]string {
	out := make(map[string]string, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}
