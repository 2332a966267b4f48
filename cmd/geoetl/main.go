// Command geoetl runs the census and election dataset pipelines over
// the shared folder tree. Run parameters live in parameters.json, the
// per-dataset stage toggles in switchers.json; stages always execute in
// raw, interim, processed order, and processed artifacts are optionally
// exported to a SQL sink afterwards.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"geoetl/internal/config"
	"geoetl/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	paramsFlag := flag.StringP("params", "p", "configs/parameters.json", "run parameters JSON path")
	switchersFlag := flag.StringP("switchers", "s", "configs/switchers.json", "per-dataset stage toggles JSON path")
	metricsFlag := flag.String("metrics", "", "metrics backend, overrides metrics.kind (none, prompush)")
	exportFlag := flag.String("export", "", "export backend, overrides export.kind (none, sqlite, postgres)")
	validateFlag := flag.Bool("validate", false, "validate the configuration and exit")
	verboseFlag := flag.BoolP("verbose", "v", false, "enable verbose (debug) logging")
	flag.Parse()

	log := logging.New(*verboseFlag)
	slog.SetDefault(log)

	cfg, err := config.Load(*paramsFlag)
	if err != nil {
		return err
	}
	sw, err := config.LoadSwitchers(*switchersFlag)
	if err != nil {
		return err
	}

	// Flag overrides land before validation so the checks run against
	// the kinds that will actually be used.
	if *metricsFlag != "" {
		cfg.Metrics.Kind = *metricsFlag
	}
	if *exportFlag != "" {
		cfg.Export.Kind = *exportFlag
	}

	issues := config.Validate(cfg, sw)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return fmt.Errorf("configuration is invalid: %s", *paramsFlag)
	}
	if *validateFlag {
		log.Info("configuration is valid", "params", *paramsFlag, "switchers", *switchersFlag)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flush := setupMetrics(cfg.Metrics, log)
	defer flush()

	repo, err := openRepository(ctx, cfg.Export)
	if err != nil {
		return err
	}
	if repo != nil {
		defer repo.Close()
	}

	start := time.Now()
	if err := runStages(ctx, cfg, sw, repo, log); err != nil {
		return err
	}
	log.Info("pipeline complete", "elapsed", time.Since(start).Truncate(time.Millisecond))
	return nil
}
