// Command postetl runs the posts/users refresh pipeline: fetch, validate,
// load, report.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"postetl/internal/config"
	"postetl/internal/metrics"
	"postetl/internal/metrics/datadog"
	"postetl/internal/metrics/prompush"
	"postetl/internal/pipeline"

	// register all storage backends with the factory; config picks one at
	// runtime but the binary supports them all.
	_ "postetl/internal/storage/all"
)

// metricsBackend is what initMetrics wires into the metrics package. Close
// performs the final flush.
type metricsBackend interface {
	metrics.Backend
	Close() error
}

// Seams for tests. Production never reassigns these.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	newPushgatewayBackend = func(jobName, gatewayURL string) (metrics.Backend, error) {
		return prompush.NewBackend(jobName, gatewayURL)
	}
	setMetricsBackend = metrics.SetBackend
	logPrintf         = log.Printf
)

// appDeps are the CLI's injectable collaborators.
type appDeps struct {
	loadConfig  func(path string) (config.Config, error)
	initMetrics func(ctx context.Context, jobName, backendName, gatewayURL string) (func(), error)
	run         func(ctx context.Context, cfg config.Config, stdout io.Writer) error
}

func defaultDeps() appDeps {
	return appDeps{
		loadConfig:  config.Load,
		initMetrics: initMetrics,
		run: func(ctx context.Context, cfg config.Config, stdout io.Writer) error {
			return pipeline.Run(ctx, cfg, pipeline.Deps{Stdout: stdout})
		},
	}
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr, defaultDeps()))
}

// runMain is the testable CLI body.
//
// Exit codes: 0 success, 1 runtime or config failure, 2 usage error.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("postetl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath    string
		backendFlg string
		gwURLFlg   string
		validate   bool
	)
	fs.StringVar(&cfgPath, "config", "", "pipeline config JSON path (defaults apply when omitted)")
	fs.StringVar(&backendFlg, "metrics-backend", "", "metrics backend (none, datadog, pushgateway)")
	fs.StringVar(&gwURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	fs.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := fs.Bool("v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "usage: postetl [-config path] [-validate] [-metrics-backend name]\n")
		return 2
	}

	cfg, err := deps.loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fmt.Fprintf(stderr, "configuration is invalid\n")
		return 1
	}
	if validate {
		fmt.Fprintln(stdout, "configuration is valid")
		return 0
	}

	backendName := backendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}

	cleanup, err := deps.initMetrics(ctx, cfg.Job, backendName, gwURLFlg)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	if *verbose {
		logPrintf("pipeline: job=%s storage=%s posts=%s users=%s",
			cfg.Job, cfg.Storage.Kind, cfg.Source.PostsURL, cfg.Source.UsersURL)
	}

	if err := deps.run(ctx, cfg, stdout); err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	return 0
}

// initMetrics wires the selected metrics backend and returns its cleanup.
// The cleanup is always non-nil and safe to call.
func initMetrics(ctx context.Context, jobName, backendName, gatewayURL string) (func(), error) {
	nop := func() {}

	switch backendName {
	case "", "none":
		return nop, nil

	case "datadog":
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName: jobName,
			Tags:    datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")),
		})
		if err != nil {
			return nop, err
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil

	case "pushgateway":
		gwURL := gatewayURL
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err := newPushgatewayBackend(jobName, gwURL)
		if err != nil {
			return nop, err
		}
		setMetricsBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				logPrintf("metrics: flush error: %v", err)
			}
		}, nil

	default:
		return nop, fmt.Errorf("unknown metrics backend %q (none|datadog|pushgateway)", backendName)
	}
}
