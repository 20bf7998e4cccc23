package validate

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/phuslu/log"
	"nuha.dev/hiketracker/internal/metrics"
	"nuha.dev/hiketracker/internal/track"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrMissingPoints    = errors.New("missing points")
	ErrEmptyBatch       = errors.New("empty batch")
	ErrBatchTooLarge    = errors.New("batch too large")
)

type pointRange struct {
	Lat float64 `validate:"min=-90,max=90"`
	Lon float64 `validate:"min=-180,max=180"`
}

// Validator checks the shape of an upload body. It never touches storage.
type Validator struct {
	max int
	vld *validator.Validate
	log log.Logger
}

func New(maxBatch int) *Validator {
	v := &Validator{max: maxBatch, vld: validator.New()}
	v.log = log.DefaultLogger
	v.log.Context = log.NewContext(nil).Str("module", "validate").Value()
	return v
}

func (v *Validator) Max() int {
	return v.max
}

// Parse decodes body into a Batch. The points field is counted before any
// element is decoded so an oversized batch is rejected cheaply.
func (v *Validator) Parse(body []byte) (track.Batch, error) {
	batch := track.Batch{BatchID: track.NoBatchID}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return batch, ErrMalformedPayload
	}

	raw, ok := fields["points"]
	if !ok {
		return batch, ErrMissingPoints
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return batch, ErrMissingPoints
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return batch, ErrMissingPoints
	}
	if len(elems) == 0 {
		return batch, ErrEmptyBatch
	}
	if v.max > 0 && len(elems) > v.max {
		return batch, fmt.Errorf("%w: %d points, max %d", ErrBatchTooLarge, len(elems), v.max)
	}

	pts := make([]track.Point, len(elems))
	for i, e := range elems {
		if err := json.Unmarshal(e, &pts[i]); err != nil {
			return batch, fmt.Errorf("%w: point %d: %v", ErrMalformedPayload, i, err)
		}
		if err := v.vld.Struct(pointRange{Lat: pts[i].Lat, Lon: pts[i].Lon}); err != nil {
			return batch, fmt.Errorf("%w: point %d out of range", ErrMalformedPayload, i)
		}
	}

	batch.Points = pts
	batch.BatchID = v.batchID(fields)
	return batch, nil
}

// batchID prefers batch_id and falls back to batch. A null or missing value
// yields NoBatchID. The id is only echoed back, so a value that is not an
// integer is logged and acknowledged as NoBatchID rather than failing the batch.
func (v *Validator) batchID(fields map[string]json.RawMessage) int64 {
	for _, name := range []string{"batch_id", "batch"} {
		raw, ok := fields[name]
		if !ok || string(bytes.TrimSpace(raw)) == "null" {
			continue
		}
		var id int64
		if err := json.Unmarshal(raw, &id); err != nil {
			metrics.BatchIDIgnored.Inc()
			v.log.Warn().Str("field", name).Str("value", string(raw)).Msg("batch id is not an integer, acknowledging as -1")
			return track.NoBatchID
		}
		return id
	}
	return track.NoBatchID
}
