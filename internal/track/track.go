package track

import (
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// NoBatchID is echoed back when the client did not send a batch id.
const NoBatchID int64 = -1

const (
	keyLayout     = "2006_01_02"
	displayLayout = "2006-01-02"
	FileExt       = ".json"
)

// Reserved record ids, these are not data partitions.
const (
	LiveID      = "live"
	HeartbeatID = "heartbeat"
	PingID      = "ping"
)

var (
	errNotObject     = errors.New("point is not an object")
	errMissingCoords = errors.New("point has no lat/lon")
)

// Point is a single GPS sample. Fields other than lat/lon are kept verbatim
// in raw and written back unchanged.
type Point struct {
	Lat float64
	Lon float64
	raw json.RawMessage
}

type coords struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func NewPoint(lat, lon float64) Point {
	p := Point{Lat: lat, Lon: lon}
	p.raw, _ = json.Marshal(map[string]float64{"lat": lat, "lon": lon})
	return p
}

func (p Point) MarshalJSON() ([]byte, error) {
	if len(p.raw) == 0 {
		return json.Marshal(map[string]float64{"lat": p.Lat, "lon": p.Lon})
	}
	return p.raw, nil
}

func (p *Point) UnmarshalJSON(d []byte) error {
	trimmed := strings.TrimSpace(string(d))
	if !strings.HasPrefix(trimmed, "{") {
		return errNotObject
	}
	c := coords{}
	if err := json.Unmarshal(d, &c); err != nil {
		return err
	}
	if c.Lat == nil || c.Lon == nil {
		return errMissingCoords
	}
	p.Lat = *c.Lat
	p.Lon = *c.Lon
	p.raw = append(json.RawMessage(nil), d...)
	return nil
}

type Batch struct {
	Points  []Point
	BatchID int64
}

// Document is the persisted form of a partition or the live window.
type Document struct {
	Points []Point `json:"points"`
}

// Beat is the persisted form of a heartbeat record.
type Beat struct {
	Ts time.Time `json:"ts"`
}

type CatalogEntry struct {
	Id     string  `json:"id"`
	File   string  `json:"file"`
	Name   string  `json:"name"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Points int     `json:"points"`
}

// PartitionKey returns the day bucket for t. The layout is zero padded and
// year first so lexical order is chronological order.
func PartitionKey(t time.Time) string {
	return t.UTC().Format(keyLayout)
}

// DisplayName turns a partition key into a human readable date, keys that do
// not parse are returned unchanged.
func DisplayName(key string) string {
	t, err := time.Parse(keyLayout, key)
	if err != nil {
		return key
	}
	return t.Format(displayLayout)
}

func IsReserved(id string) bool {
	switch id {
	case LiveID, HeartbeatID, PingID:
		return true
	}
	return false
}

// Tail returns the last n points of pts.
func Tail(pts []Point, n int) []Point {
	if n <= 0 {
		return pts[:0]
	}
	if len(pts) > n {
		return pts[len(pts)-n:]
	}
	return pts
}

// Centroid is the arithmetic mean of all latitudes and longitudes. ok is false
// for an empty slice.
func Centroid(pts []Point) (lat float64, lon float64, ok bool) {
	if len(pts) == 0 {
		return 0, 0, false
	}
	for _, p := range pts {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(pts))
	return lat / n, lon / n, true
}
