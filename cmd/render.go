package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/scriptserv/internal/engine"
	"github.com/conneroisu/scriptserv/internal/errors"
	"github.com/conneroisu/scriptserv/internal/logging"
	"github.com/conneroisu/scriptserv/internal/template"
	"github.com/conneroisu/scriptserv/internal/webctx"
)

var (
	renderParams     = newParamsFlag()
	renderPersistent = newParamsFlag()
)

var renderCmd = &cobra.Command{
	Use:   "render FILE",
	Short: "Execute a template and print the HTTP response it produces",
	Long: `Execute a template file outside the server and write the complete
response, header included, to standard output.

Request parameters are given with --param and session parameters with
--persist. Workers are available for internal dispatch when the document
root exists.

Examples:
  scriptserv render webroot/scripts/fibonacci.smscr
  scriptserv render webroot/scripts/zbrajanje.smscr -P a=4 -P b=9`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)
	AddStandardFlags(renderCmd, "root")
	renderCmd.Flags().VarP(renderParams, "param", "P", "request parameter (repeatable)")
	renderCmd.Flags().Var(renderPersistent, "persist", "session parameter (repeatable)")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	src, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading template: %w", err)
	}
	doc, err := template.Parse(string(src))
	if err != nil {
		return errors.WrapTemplate(err, errors.ErrCodeParse, args[0])
	}

	persistent := webctx.NewParams()
	for name, value := range renderPersistent.Map() {
		persistent.Set(name, value)
	}

	out := bufio.NewWriter(cmd.OutOrStdout())
	opts := []webctx.Option{webctx.WithContext(cmd.Context())}

	// Without a document root the template still renders; only internal
	// dispatch is unavailable.
	if d, err := newDispatcher(cfg, logging.Discard()); err == nil {
		opts = append(opts, webctx.WithDispatcher(d))
	} else {
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning: workers unavailable:", err)
	}

	rc := webctx.New(out, renderParams.Map(), persistent, opts...)
	if err := rc.SetEncoding(cfg.Documents.Encoding); err != nil {
		return err
	}

	if err := engine.New().Execute(cmd.Context(), doc, rc); err != nil {
		_ = out.Flush()
		return errors.WrapTemplate(err, errors.ErrCodeExecution, args[0])
	}
	if err := rc.WriteHeader(); err != nil {
		return err
	}
	return out.Flush()
}
