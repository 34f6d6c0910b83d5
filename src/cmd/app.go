package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/zvdy/emrfleet/src/awsclient"
	"github.com/zvdy/emrfleet/src/config"
	"github.com/zvdy/emrfleet/src/dispatch"
	"github.com/zvdy/emrfleet/src/fleet"
	"github.com/zvdy/emrfleet/src/journal"
	"github.com/zvdy/emrfleet/src/orchestrator"
	"github.com/zvdy/emrfleet/src/reconcile"
	"github.com/zvdy/emrfleet/src/registry"
)

// app holds the components shared by the serve and clusters commands.
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	service *fleet.Service
	store   journal.Store
	logFile io.Closer
}

// openLogFile opens path for appending log lines.
var openLogFile = func(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// newLogger builds the logger described by cfg. The returned closer is non-nil
// when logs go to a file.
func newLogger(cfg config.LoggingConfig) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()

	switch cfg.Format {
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	log.SetLevel(level)

	var closer io.Closer
	switch cfg.Output {
	case "", "stdout":
		log.SetOutput(os.Stdout)
	case "stderr":
		log.SetOutput(os.Stderr)
	default:
		f, err := openLogFile(cfg.Output)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		log.SetOutput(f)
		closer = f
	}
	return log, closer, nil
}

// newApp loads configuration and wires the fleet service. The log file is
// closed again if wiring fails.
func newApp(ctx context.Context, path string) (_ *app, err error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	log, logFile, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil && logFile != nil {
			_ = logFile.Close()
		}
	}()

	clients, err := awsclient.New(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}

	matcher, err := reconcile.MatcherByName(cfg.Reconcile.MatchPolicy)
	if err != nil {
		return nil, err
	}

	store, err := journal.New(ctx, cfg.Journal, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	registryClient := registry.NewClient(clients.SSM, cfg.Registry.Prefix, cfg.Registry.ExclusionMarker, log)
	executor := dispatch.NewLambdaExecutor(clients.Lambda, cfg.Executor.FunctionName, cfg.Executor.Timeout)
	service := fleet.NewService(
		registryClient,
		orchestrator.NewClient(clients.EMR, log),
		reconcile.NewEngine(matcher),
		dispatch.NewDispatcher(executor, log),
		store,
		fleet.Options{
			AllowedCluster:      cfg.Restriction.AllowedCluster,
			FailOnUnavailable:   cfg.Upstream.FailOnUnavailable,
			DescribeMatched:     cfg.Orchestrator.DescribeMatched,
			DescribeConcurrency: cfg.Orchestrator.DescribeConcurrency,
		},
		log,
	)

	log.WithFields(logrus.Fields{
		"registry_prefix": registryClient.Prefix(),
		"executor":        cfg.Executor.FunctionName,
		"match_policy":    cfg.Reconcile.MatchPolicy,
		"journal":         cfg.Journal.Driver,
		"restricted":      cfg.Restricted(),
	}).Info("Loaded configuration")

	return &app{
		cfg:     cfg,
		log:     log,
		service: service,
		store:   store,
		logFile: logFile,
	}, nil
}

func (a *app) Close() {
	a.store.Close()
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
