package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jgivc/harvester/internal/adapter/catalogadapter"
	"github.com/jgivc/harvester/internal/adapter/httpadapter"
	"github.com/jgivc/harvester/internal/config"
	"github.com/jgivc/harvester/internal/entity"
	httphandler "github.com/jgivc/harvester/internal/handler/http"
	reportrepo "github.com/jgivc/harvester/internal/repository/report"
	srvfetch "github.com/jgivc/harvester/internal/service/fetch"
	srvrun "github.com/jgivc/harvester/internal/service/run"
	srvverify "github.com/jgivc/harvester/internal/service/verify"
	"github.com/jgivc/harvester/internal/storage/fingerprint"
	"github.com/jgivc/harvester/internal/storage/ledger"
	reportstore "github.com/jgivc/harvester/internal/storage/report"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
)

const (
	fingerprintsFileName = "checksums.yml"
	ledgerFileName       = "metadata.yml"

	shutdownTimeout = 5 * time.Second
	verifyTimeout   = 5 * time.Minute
)

type App struct {
	cfgPath string
	cfg     *config.Config
	srv     *http.Server
	runner  *runner
	log     *slog.Logger

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfgPath string) *App {
	return &App{
		cfgPath: cfgPath,
	}
}

func (a *App) Start() {
	a.cfg = config.MustLoad(a.cfgPath)

	lo := &slog.HandlerOptions{}
	switch a.cfg.LogLevel {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		panic("unknown log level")
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, lo))
	a.log = log

	fs := afero.NewOsFs()
	dataDir := a.cfg.Orchestrator.DataDir
	if err := fs.MkdirAll(dataDir, 0o755); err != nil {
		panic(err)
	}

	store, err := fingerprint.NewStore(filepath.Join(dataDir, fingerprintsFileName), log)
	if err != nil {
		panic(err)
	}

	led, err := ledger.NewStore(filepath.Join(dataDir, ledgerFileName), log)
	if err != nil {
		panic(err)
	}

	var repo srvrun.ReportRepository
	var history httphandler.HistoryRepository
	if a.cfg.RedisURL != "" {
		opt, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			panic(err)
		}

		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			panic(err)
		}

		rr := reportrepo.NewReportRepository(rdb, a.cfg.Report.HistorySize, log)
		repo = rr
		history = rr
	}

	adapter := httpadapter.NewAdapterWithFS(fs, a.cfg.Fetcher.RequestTimeout.Value(), log)
	fetcher := srvfetch.NewFetchService(adapter, fs, &a.cfg.Fetcher, log)
	discovery := catalogadapter.NewAdapterWithFS(fs, dataDir, log)
	reports := reportstore.NewStorageWithFS(fs, dataDir, log)

	catalogPath := filepath.Join(dataDir, a.cfg.Orchestrator.CatalogName)
	run := srvrun.NewRunService(discovery, store, led, fetcher, reports, repo, catalogPath, &a.cfg.Orchestrator, log)
	verify := srvverify.NewVerifyService(fs, store, led, dataDir, log)

	a.runCtx, a.runCancel = context.WithCancel(context.Background())
	a.runner = &runner{run: run, verify: verify, ctx: a.runCtx, log: log}

	// The runner binds runs to the app lifecycle context so shutdown cancels
	// them no matter how they were triggered.
	http.Handle("POST /run", httphandler.NewRunHandler(a.runner, log))
	http.Handle("GET /report", httphandler.NewReportHandler(a.runner, log))
	http.Handle("GET /verify", httphandler.NewVerifyHandler(verify, log))

	// Published summaries live in redis, the route only exists when it is
	// configured.
	if history != nil {
		http.Handle("GET /history", httphandler.NewHistoryHandler(history, log))
	}

	a.srv = &http.Server{
		Addr: a.cfg.Listen,
	}

	go func() {
		log.Info("Start listen", slog.String("addr", a.cfg.Listen))

		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Could not serve", slog.String("listen_addr", a.cfg.Listen), slog.Any("error", err))
			os.Exit(2)
		}
	}()
}

// RunNow triggers a harvest run, typically from a signal.
func (a *App) RunNow() {
	a.runner.runOnce()
}

// Verify triggers a ledger consistency check, typically from a signal.
func (a *App) Verify() {
	a.runner.verifyOnce()
}

// Stop cancels any in-flight run and shuts the HTTP server down. The run's
// report is still finalized with the outcomes determined so far.
func (a *App) Stop() {
	a.runCancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.srv.Shutdown(ctx)
}

type runner struct {
	run    httphandler.RunService
	verify httphandler.VerifyService
	ctx    context.Context
	log    *slog.Logger
}

// Run satisfies httphandler.RunService, substituting the app lifecycle
// context for whatever the caller passed.
func (r *runner) Run(_ context.Context) (*entity.RunReport, error) {
	return r.run.Run(r.ctx)
}

func (r *runner) LastReport() (*entity.RunReport, error) {
	return r.run.LastReport()
}

func (r *runner) runOnce() {
	fmt.Println("Harvesting...")

	report, err := r.run.Run(r.ctx)
	if err != nil {
		fmt.Printf("Run failed: %s\n", err)

		if report == nil {
			return
		}
	}

	fmt.Printf("Run %s: %d succeeded, %d skipped, %d failed (%s)\n",
		report.ID, report.Succeeded, report.Skipped, len(report.Failed), report.Class())
}

func (r *runner) verifyOnce() {
	ctx, cancel := context.WithTimeout(r.ctx, verifyTimeout)
	defer cancel()

	res, err := r.verify.Verify(ctx)
	if err != nil {
		fmt.Printf("Verify failed: %s\n", err)

		return
	}

	fmt.Printf("Verify: %d missing, %d mismatched, %d orphans\n",
		len(res.Missing), len(res.Mismatched), len(res.Orphans))
}
