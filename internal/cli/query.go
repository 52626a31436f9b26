package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/repokit/internal/canonical"
	"github.com/roach88/repokit/internal/compiler"
	"github.com/roach88/repokit/internal/config"
	"github.com/roach88/repokit/internal/engine"
	"github.com/roach88/repokit/internal/metrics"
	"github.com/roach88/repokit/internal/paging"
	"github.com/roach88/repokit/internal/plan"
	"github.com/roach88/repokit/internal/queryir"
	"github.com/roach88/repokit/internal/repository"
	"github.com/roach88/repokit/internal/store"
	"github.com/roach88/repokit/internal/telemetry"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Database string
	Page     int
	Size     int
	Sort     string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <specs-dir> <Repository.method> [args...]",
		Short: "Invoke a repository method against the database",
		Long: `Invoke one repository method against the configured SQLite database.

Arguments are given in declaration order, skipping paging and sort
parameters. int and bool values are parsed; list values are comma
separated, and elements that parse as integers are ints. Modifying methods run in their own unit of work.

Environment:
  REPOKIT_DATABASE        SQLite file (default repokit.db)
  REPOKIT_LOCK_WAIT       block | fail_fast
  REPOKIT_LOCK_TIMEOUT    lock wait before giving up (default 5s)
  REPOKIT_MAX_OPEN_CONNS  connection pool size
  REPOKIT_LOG_LEVEL       debug | info | warn | error
  REPOKIT_OTLP_ENDPOINT   OTLP gRPC endpoint for traces

Examples:
  repokit query ./specs MemberRepository.findByAge 10 --size 3 --sort username,desc
  repokit query ./specs MemberRepository.bulkAgePlus 20 --format json`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], args[1], args[2:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database file (overrides REPOKIT_DATABASE)")
	cmd.Flags().IntVar(&opts.Page, "page", 0, "page index for paging parameters")
	cmd.Flags().IntVar(&opts.Size, "size", 20, "page size for paging parameters")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", `sort, e.g. "username,desc;age"`)

	return cmd
}

func runQuery(opts *QueryOptions, specsDir, target string, rawArgs []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	fail := func(code int, errCode, message string) error {
		_ = formatter.Error(errCode, message, nil)
		return NewExitError(code, fmt.Sprintf("%s: %s", errCode, message))
	}

	cfg, err := config.Load()
	if err != nil {
		return fail(ExitCommandError, ErrCodeConfig, err.Error())
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	level, _ := cfg.Level()
	logger := newLogger(opts.RootOptions, level, cmd)

	repoName, method, ok := strings.Cut(target, ".")
	if !ok || repoName == "" || method == "" {
		return fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("invalid method %q: want Repository.method", target))
	}

	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		code, message := parseCompileError(loadErrors[0])
		return fail(ExitCommandError, code, message)
	}
	cat := loadResult.Catalog
	reg, err := cat.Registry()
	if err != nil {
		return fail(ExitCommandError, ErrCodeGeneric, err.Error())
	}

	shutdown, err := telemetry.Setup(cfg.OTLPEndpoint, "repokit")
	if err != nil {
		return fail(ExitCommandError, ErrCodeConfig, fmt.Sprintf("telemetry: %v", err))
	}
	defer func() {
		if serr := shutdown(context.Background()); serr != nil {
			logger.Warn("telemetry shutdown", "error", serr)
		}
	}()

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return fail(ExitCommandError, ErrCodeGeneric, err.Error())
	}

	st, err := store.Open(cfg.Database, reg, append(cfg.StoreOptions(), store.WithLogger(logger))...)
	if err != nil {
		return fail(ExitCommandError, ErrCodeDatabase, err.Error())
	}
	defer st.Close()
	formatter.VerboseLog("Opened %s", cfg.Database)

	repos, err := cat.Bind(st,
		repository.WithLogger(logger),
		repository.WithMetrics(m),
		repository.WithTracer(telemetry.Tracer()))
	if err != nil {
		return fail(ExitCommandError, compiler.ErrBindFailed, err.Error())
	}
	repo, ok := repos[repoName]
	if !ok {
		return fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("unknown repository %q", repoName))
	}

	params, err := repo.Params(method)
	if err != nil {
		return fail(ExitCommandError, engine.Code(err), err.Error())
	}
	args, err := queryArguments(params, rawArgs, opts)
	if err != nil {
		return fail(ExitCommandError, engine.CodeArgument, err.Error())
	}

	ctx, span := telemetry.Tracer().Start(cmd.Context(), "repokit.cli.query")
	defer span.End()
	var traceID string
	if sc := span.SpanContext(); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}

	var result *engine.Result
	invoke := func(ctx context.Context) error {
		var ierr error
		result, ierr = repo.Invoke(ctx, method, args...)
		return ierr
	}
	spec, _ := repo.Spec(method)
	if _, modifying := spec.(*plan.BulkMutationSpec); modifying {
		err = repository.WithinUnitOfWork(ctx, st, invoke)
	} else {
		err = invoke(ctx)
	}
	if err != nil {
		code := engine.Code(err)
		if code == "" {
			code = ErrCodeGeneric
		}
		if formatter.Format == "json" {
			_ = formatter.Respond(CLIResponse{
				Status:  "error",
				Error:   &CLIError{Code: code, Message: err.Error()},
				TraceID: traceID,
			})
		} else {
			_ = formatter.Error(code, err.Error(), nil)
		}
		return WrapExitError(ExitFailure, target, err)
	}

	summary := result.Summary()
	if formatter.Format == "json" {
		return formatter.Respond(CLIResponse{Status: "ok", Data: summary, TraceID: traceID})
	}
	return writeSummary(formatter.Writer, target, summary)
}

// queryArguments parses rawArgs against the plain parameters and adds the
// paging request and sort from the flags.
func queryArguments(params []queryir.Param, rawArgs []string, opts *QueryOptions) ([]any, error) {
	order, err := queryir.ParseSort(opts.Sort)
	if err != nil {
		return nil, fmt.Errorf("--sort: %w", err)
	}

	var req *paging.Request
	var sortArg queryir.Sort
	hasPaging := false
	for _, p := range params {
		if p.Type == queryir.ParamPaging {
			hasPaging = true
		}
	}
	if hasPaging {
		r, err := paging.NewRequest(opts.Page, opts.Size, order...)
		if err != nil {
			return nil, err
		}
		req = &r
	} else {
		sortArg = order
	}

	values := make([]any, 0, len(rawArgs))
	i := 0
	for _, p := range params {
		if p.Type.Special() {
			continue
		}
		if i >= len(rawArgs) {
			break
		}
		v, err := parseArg(p, rawArgs[i])
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		i++
	}
	for ; i < len(rawArgs); i++ {
		values = append(values, rawArgs[i])
	}

	return repository.Arguments(params, values, req, sortArg)
}

func parseArg(p queryir.Param, raw string) (any, error) {
	switch p.Type {
	case queryir.ParamInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %q is not an int", p.Name, raw)
		}
		return n, nil
	case queryir.ParamBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %q is not a bool", p.Name, raw)
		}
		return b, nil
	case queryir.ParamList:
		var out []any
		for _, s := range strings.Split(raw, ",") {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				out = append(out, n)
				continue
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return raw, nil
	}
}

// writeSummary prints scalar fields sorted by key, then one canonical JSON
// line per item.
func writeSummary(w io.Writer, target string, summary map[string]any) error {
	fmt.Fprintf(w, "%s -> %v\n", target, summary["kind"])

	keys := make([]string, 0, len(summary))
	for k := range summary {
		if k != "kind" && k != "items" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %v\n", k, summary[k])
	}

	items, _ := summary["items"].([]any)
	for _, item := range items {
		data, err := canonical.Marshal(item)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s\n", data)
	}
	return nil
}
