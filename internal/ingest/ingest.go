package ingest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/phuslu/log"
	"nuha.dev/hiketracker/internal/archive"
	"nuha.dev/hiketracker/internal/catalog"
	"nuha.dev/hiketracker/internal/heartbeat"
	"nuha.dev/hiketracker/internal/ingest/validate"
	"nuha.dev/hiketracker/internal/live"
	"nuha.dev/hiketracker/internal/metrics"
	"nuha.dev/hiketracker/internal/stat"
	"nuha.dev/hiketracker/internal/store"
	"nuha.dev/hiketracker/internal/track"
	"nuha.dev/hiketracker/internal/util"
)

type Config struct {
	MaxBatch   int
	ArchiveCap int
	LiveWindow int
}

// Deps are the collaborators of a Service. Now defaults to time.Now.
type Deps struct {
	Store store.RecordStore
	Stat  *stat.Stat
	Now   func() time.Time
}

type UploadResponse struct {
	Status   string `json:"status"`
	AckBatch int64  `json:"ack_batch"`
	Received int    `json:"received"`
	Stored   int    `json:"stored"`
}

// Service is the ingestion core. It owns every store and is constructed once
// at process start.
type Service struct {
	validator *validate.Validator
	archive   *archive.Archive
	live      *live.Store
	upload    *heartbeat.Upload
	ping      *heartbeat.Ping
	catalog   *catalog.Catalog
	stat      *stat.Stat
	now       func() time.Time
	log       log.Logger
}

func NewService(deps *Deps, config *Config) *Service {
	s := &Service{}
	s.validator = validate.New(config.MaxBatch)
	s.archive = archive.New(deps.Store, &archive.Config{Cap: config.ArchiveCap})
	s.live = live.New(deps.Store, config.LiveWindow)
	s.upload = heartbeat.NewUpload(deps.Store)
	s.ping = heartbeat.NewPing(deps.Store)
	s.catalog = catalog.New(deps.Store)
	s.stat = deps.Stat
	if s.stat == nil {
		s.stat = stat.NewStat()
	}
	s.now = deps.Now
	if s.now == nil {
		s.now = time.Now
	}
	s.log = log.DefaultLogger
	s.log.Context = log.NewContext(nil).Str("module", "ingest").Value()
	return s
}

// Upload validates body and applies it to the live window, today's partition
// and the upload heartbeat, in that order. A failed archive write after a
// successful live write is reported as an error; the client resubmits.
func (s *Service) Upload(ctx context.Context, body []byte) (UploadResponse, error) {
	rid := middleware.GetReqID(ctx)
	if rid == "" {
		rid = util.GenUUID()
	}
	now := s.now()
	batch, err := s.validator.Parse(body)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		s.stat.RejectEv(now)
		s.log.Info().Str("upload_id", rid).Err(err).Int("bytes", len(body)).Msg("upload rejected")
		return UploadResponse{}, err
	}

	if err = s.live.Replace(batch.Points); err != nil {
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		return UploadResponse{}, err
	}
	key := track.PartitionKey(now)
	size, err := s.archive.Append(key, batch.Points)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		s.log.Error().Str("upload_id", rid).Str("partition", key).Err(err).Msg("archive write failed after live update")
		return UploadResponse{}, err
	}
	if err = s.upload.Record(now); err != nil {
		s.log.Error().Str("upload_id", rid).Err(err).Msg("unable to record upload heartbeat")
	}

	metrics.UploadsTotal.WithLabelValues("ok").Inc()
	metrics.PointsReceived.Add(float64(len(batch.Points)))
	s.stat.UploadEv(now)
	s.stat.CounterIncr(uint64(len(batch.Points)), now)
	s.log.Info().Str("upload_id", rid).Int64("batch", batch.BatchID).Int("received", len(batch.Points)).Str("partition", key).Int("stored", size).Msg("upload accepted")
	return UploadResponse{Status: "ok", AckBatch: batch.BatchID, Received: len(batch.Points), Stored: size}, nil
}

func (s *Service) Status() heartbeat.UploadStatus {
	return s.upload.Query(s.now())
}

func (s *Service) Ping() error {
	now := s.now()
	if err := s.ping.Record(now); err != nil {
		s.log.Error().Err(err).Msg("unable to record ping")
		return err
	}
	metrics.PingsTotal.Inc()
	s.stat.PingEv(now)
	return nil
}

func (s *Service) PingStatus() heartbeat.PingStatus {
	return s.ping.Query(s.now())
}

func (s *Service) Catalog() ([]track.CatalogEntry, error) {
	return s.catalog.List()
}

func (s *Service) ReadPartition(id string) ([]byte, error) {
	return s.catalog.Read(id)
}

func (s *Service) Live() []track.Point {
	return s.live.Read()
}

func (s *Service) MaxBatch() int {
	return s.validator.Max()
}

// StatusCode maps an error from the service to its HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, validate.ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, validate.ErrMalformedPayload),
		errors.Is(err, validate.ErrMissingPoints),
		errors.Is(err, validate.ErrEmptyBatch),
		errors.Is(err, catalog.ErrInvalidPartitionID),
		errors.Is(err, store.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
