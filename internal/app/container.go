package app

import (
	"context"
	"fmt"
	"time"

	"github.com/doeshing/extscan-go/internal/application/analysis"
	appconfig "github.com/doeshing/extscan-go/internal/application/config"
	"github.com/doeshing/extscan-go/internal/application/doctor"
	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/infrastructure/ai"
	"github.com/doeshing/extscan-go/internal/infrastructure/cache"
	"github.com/doeshing/extscan-go/internal/infrastructure/config"
	"github.com/doeshing/extscan-go/internal/infrastructure/history"
	"github.com/doeshing/extscan-go/internal/infrastructure/manifest"
	"github.com/doeshing/extscan-go/internal/infrastructure/monitor"
	"github.com/doeshing/extscan-go/internal/infrastructure/permissions"
	"github.com/doeshing/extscan-go/internal/infrastructure/scoring"
	"github.com/doeshing/extscan-go/internal/infrastructure/signatures"
	"github.com/doeshing/extscan-go/internal/infrastructure/transport"
	"github.com/doeshing/extscan-go/internal/pkg/logger"
	"github.com/doeshing/extscan-go/internal/ports"
)

// Options select how the container is wired.
type Options struct {
	ConfigPath string
	Verbose    bool
	// Serve attaches a websocket host so live events can reach the monitor.
	Serve bool
}

// Container wires up application services with infrastructure adapters.
type Container struct {
	Config          domain.Config
	ConfigLoader    *config.FileLoader
	Logger          ports.Logger
	Scanner         *signatures.Scanner
	Evaluator       *permissions.Evaluator
	Aggregator      *scoring.Aggregator
	Monitor         *monitor.Monitor
	Hub             *transport.Hub
	HistoryStore    *history.SQLiteStore
	CacheStore      *cache.FileCache
	Advisor         ports.ReportAdvisor
	AnalysisService *analysis.Service
	DoctorService   *doctor.Service
}

// BuildContainer constructs the dependency graph. Configuration and rule errors are fatal.
func BuildContainer(ctx context.Context, opts Options) (*Container, error) {
	cfgLoader := config.NewFileLoader(opts.ConfigPath)
	cfg, err := cfgLoader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgLoader.Path(), err)
	}
	if err := appconfig.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgLoader.Path(), err)
	}

	log := logger.NewStd(opts.Verbose)

	scanner, err := signatures.NewScannerFromFile(cfg.Rules.File, signatures.Options{
		Workers:             cfg.Scan.Workers,
		MaxFileBytes:        cfg.Scan.MaxFileBytes,
		AcceptanceThreshold: cfg.Rules.AcceptanceThreshold,
	})
	if err != nil {
		return nil, err
	}

	parser, err := manifest.NewParser()
	if err != nil {
		return nil, err
	}

	aggregator, err := scoring.NewAggregator(cfg.Scoring)
	if err != nil {
		return nil, fmt.Errorf("scoring settings: %w", err)
	}

	var historyStore *history.SQLiteStore
	var exporter ports.EventExporter
	var repository ports.ReportRepository
	if cfg.History.Enabled {
		path := cfg.History.Path
		if path == "" {
			path = history.DefaultPath()
		}
		historyStore = history.NewSQLiteStore(path)
		if historyStore.Degraded() {
			log.Warn("sqlite history unavailable, using jsonl fallback", map[string]interface{}{"path": historyStore.Path()})
		}
		exporter = historyStore
		repository = historyStore
	}

	var cacheStore *cache.FileCache
	var scanCache ports.ScanCache
	if cfg.Cache.Enabled {
		ttl, _ := time.ParseDuration(cfg.Cache.TTL)
		cacheStore = cache.NewFileCache("", ttl, cfg.Cache.MaxEntries)
		scanCache = cacheStore
	}

	var host ports.HostEnvironment = transport.Detached{}
	var hub *transport.Hub
	if opts.Serve {
		hub = transport.NewHub(cfg.Monitor.AllowedOrigins, log)
		host = hub
	}

	interval, _ := time.ParseDuration(cfg.Monitor.ExportInterval)
	mon, err := monitor.New(monitor.Options{
		Host:           host,
		Classifier:     monitor.NewClassifier(cfg.Monitor.DenyHosts),
		Weights:        cfg.Scoring.BehaviorWeights,
		Exporter:       exporter,
		ExportInterval: interval,
		BufferCapacity: cfg.Monitor.BufferCapacity,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}

	advisor, err := ai.NewFactory().ForSettings(ctx, cfg.Advisor)
	if err != nil {
		log.Warn("advisor unavailable", map[string]interface{}{"error": err.Error()})
		advisor = nil
	}

	evaluator := permissions.NewEvaluator(cfg.Permissions)

	analysisService := &analysis.Service{
		Scanner:    scanner,
		Parser:     parser,
		Evaluator:  evaluator,
		Monitor:    mon,
		Aggregator: aggregator,
		Cache:      scanCache,
		Advisor:    advisor,
		Logger:     log,
		SourceOptions: analysis.SourceOptions{
			Extensions:   cfg.Scan.Extensions,
			MaxFileBytes: cfg.Scan.MaxFileBytes,
		},
		RetentionDays: cfg.History.RetentionDays,
	}
	if repository != nil {
		analysisService.History = repository
	}

	doctorService := &doctor.Service{
		ConfigProvider: cfgLoader,
		Scanner:        scanner,
		Monitor:        mon,
	}
	if repository != nil {
		doctorService.History = repository
	}

	return &Container{
		Config:          cfg,
		ConfigLoader:    cfgLoader,
		Logger:          log,
		Scanner:         scanner,
		Evaluator:       evaluator,
		Aggregator:      aggregator,
		Monitor:         mon,
		Hub:             hub,
		HistoryStore:    historyStore,
		CacheStore:      cacheStore,
		Advisor:         advisor,
		AnalysisService: analysisService,
		DoctorService:   doctorService,
	}, nil
}

// Close releases the history database and any websocket clients.
func (c *Container) Close() error {
	if c.Hub != nil {
		c.Hub.Close()
	}
	if c.HistoryStore != nil {
		return c.HistoryStore.Close()
	}
	return nil
}
