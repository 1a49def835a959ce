package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ledgerline/debtsync/internal/api"
	"github.com/ledgerline/debtsync/internal/app/debts"
	"github.com/ledgerline/debtsync/internal/app/invalidation"
	"github.com/ledgerline/debtsync/internal/app/syncer"
	"github.com/ledgerline/debtsync/internal/domain"
	"github.com/ledgerline/debtsync/internal/infra/cache"
	"github.com/ledgerline/debtsync/internal/infra/connectivity"
	"github.com/ledgerline/debtsync/internal/infra/logging"
	"github.com/ledgerline/debtsync/internal/infra/observability"
	"github.com/ledgerline/debtsync/internal/infra/remote"
	"github.com/ledgerline/debtsync/internal/infra/sqlite"
)

// Daemon owns every long-lived component.
type Daemon struct {
	Config   Config
	Logger   logging.Logger
	DB       *sqlite.DB
	Remote   *remote.Client
	Cache    *cache.Cache
	Tracer   *observability.Tracer
	Notifier *syncer.LogNotifier
	Sync     *syncer.Coordinator
	Monitor  *connectivity.Monitor
	Debts    *debts.Service

	log       *logrus.Entry
	closeOnce sync.Once
}

// New builds the component graph. Nothing runs until Serve or Connect.
func New(cfg Config) (*Daemon, error) {
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	return NewWithLogger(cfg, logger)
}

// NewWithLogger is New with a caller-supplied logger.
func NewWithLogger(cfg Config, logger logging.Logger) (*Daemon, error) {
	home := Home()
	if err := os.MkdirAll(home, 0o700); err != nil {
		return nil, fmt.Errorf("create home %s: %w", home, err)
	}
	db, err := sqlite.Open(home)
	if err != nil {
		return nil, fmt.Errorf("open sync queue: %w", err)
	}

	d := &Daemon{
		Config: cfg,
		Logger: logger,
		DB:     db,
		log:    logging.Component(logger, "daemon"),
	}
	d.Remote = remote.New(cfg.RemoteClient(), logger)
	d.Cache = cache.New(cfg.CacheOptions(), cache.PrometheusHooks())
	d.Tracer = observability.NewTracer(observability.TracerConfig{Enabled: true, MaxSpans: cfg.Sync.TraceSpans})
	d.Notifier = syncer.NewLogNotifier(logger)
	d.Sync = syncer.New(syncer.Deps{
		Queue:     db,
		Committer: d.Remote,
		Views:     d.Cache,
		Reconcile: d.Cache.InvalidateAll,
		Graph:     invalidation.Default(),
		Notifier:  d.Notifier,
		Tracer:    d.Tracer,
		Logger:    logger,
	})
	d.Monitor = connectivity.NewMonitor(d.Remote, cfg.Probe(), logger)
	d.Monitor.Subscribe(d.Sync.SetConnectivity)
	d.Debts = debts.NewService(d.Remote, d.Cache, d.Sync, nil)

	if cfg.Sync.StartOnline {
		d.Monitor.Set(domain.Online)
	}
	return d, nil
}

// Connect probes the remote once and waits for any replay it triggers.
// One-shot CLI commands call it before reading or writing.
func (d *Daemon) Connect(ctx context.Context) domain.Connectivity {
	state := d.Monitor.Probe(ctx)
	d.Sync.Wait()
	return state
}

// Serve runs the local API, the probe loop and the cache sweeper until ctx
// ends, then shuts down.
func (d *Daemon) Serve(ctx context.Context) error {
	srv := api.NewServer(api.Deps{
		Debts:        d.Debts,
		Sync:         d.Sync,
		Connectivity: d.Monitor,
		Cache:        d.Cache,
		Tracer:       d.Tracer,
		Notifier:     d.Notifier,
		Logger:       d.Logger,
	})
	if d.Config.API.Metrics {
		srv.EnableMetrics()
	}

	httpSrv := &http.Server{
		Addr:              d.Config.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		d.Monitor.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		d.Cache.Run(runCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		d.log.WithField("addr", httpSrv.Addr).Info("local API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-runCtx.Done():
	case serveErr = <-errCh:
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		d.log.WithError(err).Warn("api shutdown")
	}
	wg.Wait()

	if serveErr != nil {
		return fmt.Errorf("local API: %w", serveErr)
	}
	return nil
}

// Close stops replay at the next entry boundary, waits for in-flight work
// and closes the queue database.
func (d *Daemon) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.Sync.SetConnectivity(domain.Offline)
		d.Sync.Wait()
		d.Cache.Wait()
		err = d.DB.Close()
	})
	return err
}
