package journey

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Transport is the coarse network-medium classification reported by the
// throughput probe.
type Transport string

const (
	TransportWifi         Transport = "wifi"
	TransportCellular     Transport = "cellular"
	TransportUnknown      Transport = "unknown"
	TransportDisconnected Transport = "disconnected"
)

// Quality buckets a throughput measurement against two floors. A sample
// with no measurement is offline regardless of transport.
type Quality string

const (
	QualityGood     Quality = "good"
	QualityModerate Quality = "moderate"
	QualityPoor     Quality = "poor"
	QualityOffline  Quality = "offline"
)

// Thresholds are the quality class floors in Mbps. A value exactly equal to
// a floor belongs to the higher class.
type Thresholds struct {
	ModerateFloorMbps float64
	GoodFloorMbps     float64
}

var DefaultThresholds = Thresholds{ModerateFloorMbps: 2, GoodFloorMbps: 10}

// Sample is one validated measurement: a position fix plus the throughput
// probe result taken at the same cycle. ThroughputMbps nil means no
// measurement was obtained, which is distinct from a measured zero.
type Sample struct {
	Timestamp      int64     `json:"timestamp"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Accuracy       float64   `json:"accuracy"`
	ThroughputMbps *float64  `json:"throughputMbps"`
	Transport      Transport `json:"transport"`
}

// Journey is an ordered, exclusively owned collection of samples with a
// start/end lifecycle. EndTime nil means the journey is still ongoing.
type Journey struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	StartTime int64    `json:"startTime"`
	EndTime   *int64   `json:"endTime"`
	Samples   []Sample `json:"samples"`
}

// Stats is derived from the sample sequence on demand, never stored.
// Mean/Max/Min cover only samples with a present measurement and are nil
// when there are none.
type Stats struct {
	PointCount int      `json:"point_count"`
	MeanMbps   *float64 `json:"mean_mbps"`
	MaxMbps    *float64 `json:"max_mbps"`
	MinMbps    *float64 `json:"min_mbps"`
	Good       int      `json:"good"`
	Moderate   int      `json:"moderate"`
	Poor       int      `json:"poor"`
	Offline    int      `json:"offline"`
	DurationMs int64    `json:"duration_ms"`
}

// ValidationError reports the first field that violated its bound during
// construction or deserialization.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewSample validates and constructs a sample. throughput nil records the
// explicit "no measurement obtained" case.
func NewSample(timestamp int64, lat, lng, accuracy float64, throughput *float64, transport Transport) (Sample, error) {
	s := Sample{
		Timestamp:      timestamp,
		Latitude:       lat,
		Longitude:      lng,
		Accuracy:       accuracy,
		ThroughputMbps: throughput,
		Transport:      transport,
	}
	if err := s.Validate(); err != nil {
		return Sample{}, err
	}
	return s, nil
}

// Validate re-checks every field bound, so records coming back from the
// store or an import envelope cannot smuggle in bad data.
func (s Sample) Validate() error {
	if s.Timestamp <= 0 {
		return &ValidationError{Field: "timestamp", Message: "must be a positive unix-ms value"}
	}
	if s.Latitude < -90 || s.Latitude > 90 {
		return &ValidationError{Field: "latitude", Message: "must be within [-90, 90]"}
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		return &ValidationError{Field: "longitude", Message: "must be within [-180, 180]"}
	}
	if s.Accuracy < 0 {
		return &ValidationError{Field: "accuracy", Message: "must be non-negative meters"}
	}
	if s.ThroughputMbps != nil && *s.ThroughputMbps < 0 {
		return &ValidationError{Field: "throughputMbps", Message: "must be non-negative or null"}
	}
	switch s.Transport {
	case TransportWifi, TransportCellular, TransportUnknown, TransportDisconnected:
	default:
		return &ValidationError{Field: "transport", Message: fmt.Sprintf("unknown transport %q", s.Transport)}
	}
	return nil
}

// Quality classifies the sample's throughput against the given floors.
func (s Sample) Quality(th Thresholds) Quality {
	if s.ThroughputMbps == nil {
		return QualityOffline
	}
	mbps := *s.ThroughputMbps
	switch {
	case mbps >= th.GoodFloorMbps:
		return QualityGood
	case mbps >= th.ModerateFloorMbps:
		return QualityModerate
	default:
		return QualityPoor
	}
}

// Color returns the display color for a quality class.
func (q Quality) Color() string {
	switch q {
	case QualityGood:
		return "#4caf50"
	case QualityModerate:
		return "#ff9800"
	case QualityPoor:
		return "#f44336"
	default:
		return "#9e9e9e"
	}
}

// New creates an ongoing journey with a fresh id and no samples. An empty
// name is synthesized from the start date.
func New(name string, startTime time.Time) (Journey, error) {
	start := startTime.UnixMilli()
	if start <= 0 {
		return Journey{}, &ValidationError{Field: "startTime", Message: "must be a positive unix-ms value"}
	}
	if name == "" {
		name = "Journey " + startTime.Format("2006-01-02 15:04")
	}
	return Journey{
		ID:        uuid.NewString(),
		Name:      name,
		StartTime: start,
		Samples:   []Sample{},
	}, nil
}

// Append validates the sample and pushes it onto the end of the sequence.
func (j *Journey) Append(s Sample) error {
	if err := s.Validate(); err != nil {
		return err
	}
	j.Samples = append(j.Samples, s)
	return nil
}

// End fixes the journey's end time. Re-invoking overwrites; the recorder is
// responsible for calling it once per session.
func (j *Journey) End(at time.Time) error {
	end := at.UnixMilli()
	if end < j.StartTime {
		return &ValidationError{Field: "endTime", Message: "must not precede startTime"}
	}
	j.EndTime = &end
	return nil
}

// Ongoing reports whether the journey has not ended yet.
func (j Journey) Ongoing() bool {
	return j.EndTime == nil
}

// Validate checks the journey's own fields and every nested sample.
func (j Journey) Validate() error {
	if j.ID == "" {
		return &ValidationError{Field: "id", Message: "must not be empty"}
	}
	if j.Name == "" {
		return &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if j.StartTime <= 0 {
		return &ValidationError{Field: "startTime", Message: "must be a positive unix-ms value"}
	}
	if j.EndTime != nil && *j.EndTime < j.StartTime {
		return &ValidationError{Field: "endTime", Message: "must not precede startTime"}
	}
	for _, s := range j.Samples {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a snapshot with an independent sample slice, so consumers
// never hold references into the live sequence.
func (j Journey) Clone() Journey {
	c := j
	if j.EndTime != nil {
		end := *j.EndTime
		c.EndTime = &end
	}
	c.Samples = make([]Sample, len(j.Samples))
	copy(c.Samples, j.Samples)
	return c
}

// Stats recomputes the derived aggregates from the current sample sequence.
func (j Journey) Stats(th Thresholds) Stats {
	st := Stats{PointCount: len(j.Samples)}

	var sum float64
	var measured int
	for _, s := range j.Samples {
		switch s.Quality(th) {
		case QualityGood:
			st.Good++
		case QualityModerate:
			st.Moderate++
		case QualityPoor:
			st.Poor++
		default:
			st.Offline++
		}
		if s.ThroughputMbps == nil {
			continue
		}
		mbps := *s.ThroughputMbps
		sum += mbps
		measured++
		if st.MaxMbps == nil || mbps > *st.MaxMbps {
			v := mbps
			st.MaxMbps = &v
		}
		if st.MinMbps == nil || mbps < *st.MinMbps {
			v := mbps
			st.MinMbps = &v
		}
	}
	if measured > 0 {
		mean := sum / float64(measured)
		st.MeanMbps = &mean
	}

	end := time.Now().UnixMilli()
	if j.EndTime != nil {
		end = *j.EndTime
	}
	st.DurationMs = end - j.StartTime
	return st
}
