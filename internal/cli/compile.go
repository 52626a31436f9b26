package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/repokit/internal/compiler"
	"github.com/roach88/repokit/internal/plan"
	"github.com/roach88/repokit/internal/repository"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult describes every bound repository of a declaration
// directory.
type CompilationResult struct {
	Entities     []string            `json:"entities"`
	DTOs         []string            `json:"dtos"`
	Repositories []RepositorySummary `json:"repositories"`
}

// RepositorySummary lists the bound methods of one repository.
type RepositorySummary struct {
	Name    string          `json:"name"`
	Entity  string          `json:"entity"`
	Methods []MethodSummary `json:"methods"`
}

// MethodSummary is one bound method with its spec fingerprint.
type MethodSummary struct {
	Name        string         `json:"name"`
	Kind        string         `json:"kind"` // "query" | "mutation"
	Fingerprint string         `json:"fingerprint"`
	Plan        map[string]any `json:"plan"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <specs-dir>",
		Short: "Bind every repository method and print its plan",
		Long: `Compile CUE entity, dto and repository declarations.

Every method is bound to an immutable plan; the output lists each method
with the fingerprint of its plan. Two declarations with the same
fingerprint execute identically.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the compiled plans as JSON to this file")

	return cmd
}

func runCompile(opts *CompileOptions, specsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, slog.LevelWarn, cmd)

	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeCollectAll)
	if loadResult == nil {
		return outputCompileError(formatter, loadErrors[0])
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)
	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	cat := loadResult.Catalog
	repos, err := cat.Bind(nil, repository.WithLogger(logger))
	if err != nil {
		return outputBindErrors(formatter, cat, err)
	}

	result, err := summarize(cat, repos, formatter)
	if err != nil {
		return outputCompileError(formatter, err)
	}

	if opts.Output != "" {
		if err := writeResultToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, &LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing output file: %v", err)})
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// summarize lists repositories in declaration order and methods by name.
func summarize(cat *compiler.Catalog, repos map[string]*repository.Repository, formatter *OutputFormatter) (*CompilationResult, error) {
	result := &CompilationResult{
		Entities:     make([]string, 0, len(cat.Entities)),
		DTOs:         make([]string, 0, len(cat.DTOs)),
		Repositories: make([]RepositorySummary, 0, len(cat.Repositories)),
	}
	for _, e := range cat.Entities {
		result.Entities = append(result.Entities, e.Name)
	}
	for _, d := range cat.DTOs {
		result.DTOs = append(result.DTOs, d.Name)
	}

	for _, decl := range cat.Repositories {
		name := decl.Name
		if name == "" {
			name = decl.Entity + "Repository"
		}
		repo := repos[name]
		formatter.VerboseLog("Compiling repository: %s", name)

		summary := RepositorySummary{Name: name, Entity: repo.Entity()}
		for _, method := range repo.Methods() {
			spec, _ := repo.Spec(method)
			fp, err := plan.Fingerprint(spec)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: fingerprint: %w", name, method, err)
			}
			doc := plan.Describe(spec)
			kind, _ := doc["kind"].(string)
			summary.Methods = append(summary.Methods, MethodSummary{
				Name:        method,
				Kind:        kind,
				Fingerprint: fp,
				Plan:        doc,
			})
		}
		result.Repositories = append(result.Repositories, summary)
	}
	return result, nil
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	methods := 0
	for _, r := range result.Repositories {
		methods += len(r.Methods)
	}
	fmt.Fprintf(w, "✓ Compiled %d entity(ies), %d dto(s), %d repository(ies), %d method(s)\n\n",
		len(result.Entities), len(result.DTOs), len(result.Repositories), methods)

	for _, r := range result.Repositories {
		fmt.Fprintf(w, "%s (%s):\n", r.Name, r.Entity)
		for _, m := range r.Methods {
			fmt.Fprintf(w, "  %-32s %-8s %s\n", m.Name, m.Kind, m.Fingerprint[:16])
		}
		fmt.Fprintln(w)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote compiled plans to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single error that stopped compilation.
func outputCompileError(formatter *OutputFormatter, err error) error {
	code, message := parseCompileError(err)
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}
		if err := formatter.Respond(CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors,
		}); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// outputBindErrors reports methods that did not bind. Validation pins each
// failure to its method; the joined bind error is the fallback.
func outputBindErrors(formatter *OutputFormatter, cat *compiler.Catalog, bindErr error) error {
	var errs []error
	for _, ve := range compiler.Validate(cat) {
		errs = append(errs, &LoadError{Code: ve.Code, Message: ve.Field + ": " + ve.Message, Pos: cat.Pos(ve.Field)})
	}
	if len(errs) == 0 {
		errs = append(errs, &LoadError{Code: compiler.ErrBindFailed, Message: bindErr.Error()})
	}
	return outputCompileErrors(formatter, errs)
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

func writeResultToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling plans: %w", err)
	}
	return os.WriteFile(filename, data, 0o644)
}
