package monitoring

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nuha.dev/hiketracker/internal/stat"
	"nuha.dev/hiketracker/internal/util"
)

type MonitoringServer struct {
	stat   *stat.Stat
	server *http.Server
	log    log.Logger
}

type MonitoringConfig struct {
	ListenAddr string
}

func NewMonApi(st *stat.Stat, config *MonitoringConfig) *MonitoringServer {
	m := &MonitoringServer{stat: st}
	m.log = log.DefaultLogger
	m.log.Context = log.NewContext(nil).Str("module", "monitoring").Value()
	m.server = &http.Server{
		Addr:           config.ListenAddr,
		Handler:        m.GetHandler(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return m
}

func (m *MonitoringServer) Run() error {
	m.log.Info().Msgf("starting monitoring server on : %s", m.server.Addr)
	err := m.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (m *MonitoringServer) Server() *http.Server {
	return m.server
}

func (m *MonitoringServer) serve_stat(w http.ResponseWriter, r *http.Request) {
	util.JsonWrite(w, m.stat.Snapshot())
}

func (m *MonitoringServer) GetHandler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/stat", m.serve_stat)
	return r
}
