package cmd

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/scriptserv/internal/errors"
	"github.com/conneroisu/scriptserv/internal/template"
)

var validateFlags *StandardFlags

// validateCmd represents the validate command.
var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Parse templates and report syntax errors",
	Long: `Parse every template under the document root, or the given files, and
report lexer and parser errors with their positions.

Examples:
  scriptserv validate                       # Check the whole document root
  scriptserv validate page.smscr            # Check one file
  scriptserv validate --format json         # Machine-readable report`,
	RunE: runValidateCommand,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateFlags = AddStandardFlags(validateCmd, "root", "output")
}

// ValidationReport is the result of a validate run.
type ValidationReport struct {
	Checked int                `json:"checked" yaml:"checked"`
	Valid   int                `json:"valid"   yaml:"valid"`
	Errors  []errors.FileError `json:"errors"  yaml:"errors"`
}

func runValidateCommand(cmd *cobra.Command, args []string) error {
	if err := ValidateFormat(validateFlags.OutputFormat, "text", "json", "yaml"); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	files := args
	if len(files) == 0 {
		files, err = findTemplates(cfg.Documents.Root, cfg.Documents.TemplateExtensions)
		if err != nil {
			return err
		}
	}

	report := validateTemplates(files)
	if !validateFlags.Quiet || len(report.Errors) > 0 {
		if err := writeReport(cmd.OutOrStdout(), validateFlags.OutputFormat, report); err != nil {
			return err
		}
	}
	if len(report.Errors) > 0 {
		return fmt.Errorf("%d of %d templates have errors", report.Checked-report.Valid, report.Checked)
	}
	return nil
}

func findTemplates(root string, exts []string) ([]string, error) {
	allowed := make(map[string]bool, len(exts))
	for _, ext := range exts {
		allowed[strings.ToLower(ext)] = true
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if allowed[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	return files, nil
}

func validateTemplates(files []string) ValidationReport {
	collector := errors.NewCollector()
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			collector.Add(errors.FileError{File: file, Message: err.Error()})
			continue
		}
		if _, err := template.Parse(string(src)); err != nil {
			collector.Add(fileError(file, err))
		}
	}

	report := ValidationReport{Checked: len(files), Errors: []errors.FileError{}}
	if !collector.HasErrors() {
		report.Valid = report.Checked
		return report
	}
	report.Errors = collector.FileErrors()
	for _, file := range files {
		if len(collector.ErrorsByFile(file)) == 0 {
			report.Valid++
		}
	}
	return report
}

func fileError(file string, err error) errors.FileError {
	fe := errors.FileError{File: file, Message: err.Error()}
	var se *errors.ServerError
	if stderrors.As(err, &se) {
		fe.Line, fe.Column = se.Line, se.Column
		if se.Message != "" {
			fe.Message = se.Message
		}
	}
	return fe
}

func writeReport(w io.Writer, format string, report ValidationReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	default:
		for i := range report.Errors {
			fmt.Fprintln(w, report.Errors[i].Error())
		}
		fmt.Fprintf(w, "%d templates checked, %d valid\n", report.Checked, report.Valid)
		return nil
	}
}
