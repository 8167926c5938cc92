package cli

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abm1119/bita/internal/harness"
)

// ScenarioRunOptions holds flags for scenario run.
type ScenarioRunOptions struct {
	*RootOptions
	Update bool
	Filter string
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name" yaml:"name"`
	Pass   bool     `json:"pass" yaml:"pass"`
	Errors []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// ScenarioRunResult summarizes a scenario run.
type ScenarioRunResult struct {
	Scenarios []ScenarioResult `json:"scenarios" yaml:"scenarios"`
	Passed    int              `json:"passed" yaml:"passed"`
	Failed    int              `json:"failed" yaml:"failed"`
	Total     int              `json:"total" yaml:"total"`
}

// NewScenarioCommand creates the scenario command group.
func NewScenarioCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Run ledger scenarios against in-memory devices",
	}
	cmd.AddCommand(newScenarioRunCommand(opts))
	return cmd
}

func newScenarioRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioRunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenarios-dir>",
		Short: "Run scenario files and check their expectations",
		Long: `Run every scenario (*.yaml, *.yml) under a directory. Each scenario drives
one or more in-memory devices sharing a backup slot and checks the final
ledger of every device.

When <dir>/golden/<name>.golden exists the rendered trace must match it.
Use --update to write the golden files from the current run.

Exit codes:
  0 - all scenarios passed
  1 - at least one scenario failed
  2 - command error (missing directory, bad flags)

Examples:
  bita scenario run ./scenarios
  bita scenario run ./scenarios --filter 'pay_*'
  bita scenario run ./scenarios --update`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "write golden files from the current run")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose file name matches this glob")

	return cmd
}

func runScenarios(cmd *cobra.Command, opts *ScenarioRunOptions, dir string) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}
	if opts.Filter != "" {
		if _, err := filepath.Match(opts.Filter, ""); err != nil {
			return WrapExitError(ExitCommandError, "invalid --filter pattern", err)
		}
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	log, err := newLogger(cmd, opts.RootOptions, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list scenarios", err)
	}

	f := newFormatter(cmd, opts.RootOptions)
	text := !f.isStructured()
	w := cmd.OutOrStdout()

	if len(files) == 0 {
		return f.Render(ScenarioRunResult{Scenarios: []ScenarioResult{}}, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, "No scenarios found.")
			return err
		})
	}

	var out ScenarioRunResult
	for _, file := range files {
		sr := runScenarioFile(file, opts.Update, log)
		if text {
			printScenarioResult(w, sr)
		}
		out.Scenarios = append(out.Scenarios, sr)
		if sr.Pass {
			out.Passed++
		} else {
			out.Failed++
		}
	}
	out.Total = len(out.Scenarios)

	if err := f.Render(out, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", out.Passed, out.Failed, out.Total)
		return err
	}); err != nil {
		return err
	}

	if out.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", out.Failed, out.Total))
	}
	return nil
}

func printScenarioResult(w io.Writer, sr ScenarioResult) {
	if sr.Pass {
		fmt.Fprintf(w, "✓ %s\n", sr.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(e, "\n", "\n  "))
	}
}

// findScenarioFiles returns scenario files under dir in lexical order.
func findScenarioFiles(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, filepath.Base(path)); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

func runScenarioFile(file string, update bool, log *zap.Logger) ScenarioResult {
	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{Name: name, Errors: []string{err.Error()}}
	}
	name = scenario.Name

	result, err := harness.Run(scenario, harness.WithLogger(log.With(zap.String("scenario", name))))
	if err != nil {
		return ScenarioResult{Name: name, Errors: []string{err.Error()}}
	}
	errs := result.Errors

	golden := goldenFilePath(file)
	rendered := harness.Render(scenario.Name, result)
	switch {
	case update:
		if err := writeGoldenFile(golden, rendered); err != nil {
			errs = append(errs, fmt.Sprintf("failed to update golden file: %v", err))
		}
	default:
		want, err := os.ReadFile(golden)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			errs = append(errs, fmt.Sprintf("failed to read golden file: %v", err))
		case !bytes.Equal(want, rendered):
			errs = append(errs, "trace does not match golden file (run with --update to regenerate)")
		}
	}

	return ScenarioResult{Name: name, Pass: len(errs) == 0, Errors: errs}
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func writeGoldenFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
