package web

import (
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/phuslu/log"
	proxyproto "github.com/pires/go-proxyproto"
	"nuha.dev/hiketracker/internal/ingest"
	"nuha.dev/hiketracker/internal/util"
)

type ApiConfig struct {
	ListenAddr       string
	MaxBodyBytes     int64
	UploadRatePerMin int
	ProxyProtocol    bool
}

type Api struct {
	r      chi.Router
	s      *http.Server
	config *ApiConfig
	log    log.Logger
	svc    *ingest.Service
}

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type okResponse struct {
	Status string `json:"status"`
}

func NewApi(svc *ingest.Service, config *ApiConfig) *Api {
	api := &Api{config: config, svc: svc}
	api.log = log.DefaultLogger
	api.log.Context = log.NewContext(nil).Str("module", "api-server").Value()
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	upload := r.With()
	if config.UploadRatePerMin > 0 {
		upload = r.With(httprate.LimitByIP(config.UploadRatePerMin, time.Minute))
	}
	upload.Post("/upload", api.Upload)
	r.Get("/status", api.Status)
	r.Post("/ping", api.Ping)
	r.Get("/alive", api.PingStatus)
	r.Get("/data", api.ListData)
	r.Get("/live", api.Live)
	r.Get("/track/{fname}", api.Track)

	api.r = r
	api.s = &http.Server{
		Addr:           config.ListenAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return api
}

func (api *Api) Handler() http.Handler {
	return api.r
}

// Run listens and serves until the server is shut down. With ProxyProtocol
// set the listener accepts PROXY headers from a fronting load balancer.
func (api *Api) Run() error {
	ln, err := net.Listen("tcp", api.s.Addr)
	if err != nil {
		api.log.Error().Err(err).Msg("unable to listen")
		return err
	}
	if api.config.ProxyProtocol {
		ln = &proxyproto.Listener{Listener: ln}
	}
	api.log.Info().Bool("proxy_protocol", api.config.ProxyProtocol).Msgf("starting api-server on : %s", api.s.Addr)
	err = api.s.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (api *Api) Server() *http.Server {
	return api.s
}

func (api *Api) writeError(w http.ResponseWriter, err error) {
	util.JsonWriteStatus(w, ingest.StatusCode(err), errorResponse{Status: "error", Error: err.Error()})
}

func (api *Api) Upload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, api.config.MaxBodyBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			util.JsonWriteStatus(w, http.StatusRequestEntityTooLarge, errorResponse{Status: "error", Error: "request body too large"})
			return
		}
		util.JsonWriteStatus(w, http.StatusBadRequest, errorResponse{Status: "error", Error: err.Error()})
		return
	}
	res, err := api.svc.Upload(r.Context(), body)
	if err != nil {
		api.writeError(w, err)
		return
	}
	util.JsonWrite(w, res)
}

func (api *Api) Status(w http.ResponseWriter, r *http.Request) {
	util.JsonWrite(w, api.svc.Status())
}

func (api *Api) Ping(w http.ResponseWriter, r *http.Request) {
	if err := api.svc.Ping(); err != nil {
		api.writeError(w, err)
		return
	}
	util.JsonWrite(w, okResponse{Status: "ok"})
}

func (api *Api) PingStatus(w http.ResponseWriter, r *http.Request) {
	util.JsonWrite(w, api.svc.PingStatus())
}

func (api *Api) ListData(w http.ResponseWriter, r *http.Request) {
	entries, err := api.svc.Catalog()
	if err != nil {
		api.log.Error().Err(err).Msg("unable to list catalog")
		api.writeError(w, err)
		return
	}
	util.JsonWrite(w, entries)
}

func (api *Api) Live(w http.ResponseWriter, r *http.Request) {
	util.JsonWrite(w, map[string]interface{}{"points": api.svc.Live()})
}

// Track serves a stored record as is.
func (api *Api) Track(w http.ResponseWriter, r *http.Request) {
	d, err := api.svc.ReadPartition(chi.URLParam(r, "fname"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(d)
}
