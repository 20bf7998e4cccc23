package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/phuslu/log"
	"nuha.dev/hiketracker/internal/config"
	"nuha.dev/hiketracker/internal/ingest"
	"nuha.dev/hiketracker/internal/stat"
	"nuha.dev/hiketracker/internal/store"
	"nuha.dev/hiketracker/internal/store/impl/badgerstore"
	"nuha.dev/hiketracker/internal/store/impl/filestore"
	"nuha.dev/hiketracker/internal/store/impl/logstore"
	"nuha.dev/hiketracker/internal/web"
	"nuha.dev/hiketracker/internal/web/monitoring"
)

func main() {
	config_path := flag.String("config", "", "optional config file (yaml, json or toml)")
	mon_server := flag.Bool("mon_server", true, "run monitoring server")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*config_path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log.DefaultLogger.Level = log.ParseLevel(cfg.LogLevel)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	if err := run(cfg, *mon_server, signals); err != nil {
		log.Error().Err(err).Msg("hiketracker stopped")
		os.Exit(1)
	}
}

// run serves until a signal arrives or one of the servers fails. A server that
// cannot start, e.g. because its port is taken, is returned as an error.
func run(cfg *config.Config, mon_server bool, signals <-chan os.Signal) error {
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	defer st.Close()

	stats := stat.NewStat()
	svc := ingest.NewService(&ingest.Deps{Store: st, Stat: stats}, &ingest.Config{
		MaxBatch:   cfg.MaxBatch,
		ArchiveCap: cfg.ArchiveCap,
		LiveWindow: cfg.LiveWindow,
	})
	api := web.NewApi(svc, &web.ApiConfig{
		ListenAddr:       cfg.ListenAddr,
		MaxBodyBytes:     cfg.MaxBodyBytes,
		UploadRatePerMin: cfg.UploadRatePerMin,
		ProxyProtocol:    cfg.ProxyProtocol,
	})

	errc := make(chan error, 2)
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := api.Run(); err != nil {
			errc <- fmt.Errorf("api-server: %w", err)
		}
	}()

	var mon *monitoring.MonitoringServer
	if mon_server && cfg.MonAddr != "" {
		mon = monitoring.NewMonApi(stats, &monitoring.MonitoringConfig{ListenAddr: cfg.MonAddr})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mon.Run(); err != nil {
				errc <- fmt.Errorf("monitoring server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case sig := <-signals:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case runErr = <-errc:
		log.Error().Err(runErr).Msg("server failed, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = api.Server().Shutdown(ctx)
	if mon != nil {
		_ = mon.Server().Shutdown(ctx)
	}
	wg.Wait()
	return runErr
}

func openStore(cfg *config.Config) (store.RecordStore, error) {
	switch cfg.Backend {
	case config.BackendBadger:
		return badgerstore.Open(filepath.Join(cfg.DataDir, "badger"))
	case config.BackendLog:
		return logstore.NewStore(), nil
	default:
		return filestore.NewOs(cfg.DataDir)
	}
}
