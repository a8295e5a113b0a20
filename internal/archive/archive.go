// Package archive queries and downloads laser ranging datasets from an
// EDC-style archive API.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/slr-reduction/internal/logging"
)

// ErrUnavailable marks data that could not be retrieved. It is distinct
// from parse errors so callers can tell bad data from missing data.
var ErrUnavailable = errors.New("archive: data unavailable")

// DefaultURL is the public EDC API endpoint.
const DefaultURL = "https://edc.dgfi.tum.de/api/v1/"

const archiveDateLayout = "2006-01-02 15:04:05"

// DataType selects the product family.
type DataType string

const (
	DataCPF DataType = "CPF"
	DataNPT DataType = "NPT" // normal points
	DataFRD DataType = "FRD" // full rate
)

// ParseDataType accepts the names above in any case.
func ParseDataType(s string) (DataType, error) {
	switch t := DataType(strings.ToUpper(strings.TrimSpace(s))); t {
	case DataCPF, DataNPT, DataFRD:
		return t, nil
	default:
		return "", fmt.Errorf("archive: unknown data type %q", s)
	}
}

// Dataset is one entry of a query reply.
type Dataset struct {
	ID        int       `json:"id"`
	Station   string    `json:"station"`
	Satellite string    `json:"satellite"`
	StartData time.Time `json:"start_data_date"`
	EndData   time.Time `json:"end_data_date"`
}

// UnmarshalJSON accepts ids as numbers or strings and the archive's
// "YYYY-MM-DD hh:mm:ss" timestamps.
func (d *Dataset) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID        json.RawMessage `json:"id"`
		Station   string          `json:"station"`
		Satellite string          `json:"satellite"`
		StartData string          `json:"start_data_date"`
		EndData   string          `json:"end_data_date"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	id, err := strconv.Atoi(strings.Trim(string(raw.ID), `"`))
	if err != nil {
		return fmt.Errorf("dataset id %s: %w", raw.ID, err)
	}
	out := Dataset{ID: id, Station: raw.Station, Satellite: raw.Satellite}
	if raw.StartData != "" {
		if out.StartData, err = time.ParseInLocation(archiveDateLayout, raw.StartData, time.UTC); err != nil {
			return fmt.Errorf("dataset %d start: %w", id, err)
		}
	}
	if raw.EndData != "" {
		if out.EndData, err = time.ParseInLocation(archiveDateLayout, raw.EndData, time.UTC); err != nil {
			return fmt.Errorf("dataset %d end: %w", id, err)
		}
	}
	*d = out
	return nil
}

// Query selects datasets of one satellite (COSPAR id) in a window.
type Query struct {
	Type      DataType
	Satellite string
	Start     time.Time
	End       time.Time
}

// Source retrieves datasets. Implementations do not retry.
type Source interface {
	Query(ctx context.Context, q Query) ([]Dataset, error)
	Download(ctx context.Context, t DataType, id int) ([]string, error)
}

// Config carries the archive credentials.
type Config struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
}

// Client talks to the archive over HTTP form posts with JSON replies.
type Client struct {
	cfg  Config
	http *http.Client
	log  logging.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient builds a client. An empty URL uses DefaultURL.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, log: logging.Noop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query lists datasets. Predictions are looked up by their start day;
// tracking data is queried one end day at a time across the window and
// only datasets fully inside [Start, End] are kept.
func (c *Client) Query(ctx context.Context, q Query) ([]Dataset, error) {
	ctx, span := otel.Tracer("github.com/signalsfoundry/slr-reduction/internal/archive").Start(ctx, "archive.Query")
	defer span.End()
	span.SetAttributes(attribute.String("data_type", string(q.Type)), attribute.String("satellite", q.Satellite))

	if q.Satellite == "" {
		return nil, fmt.Errorf("archive: query needs a satellite id")
	}
	base := url.Values{
		"action":    {"data-query"},
		"data_type": {string(q.Type)},
		"satellite": {q.Satellite},
	}

	if q.Type == DataCPF {
		form := cloneValues(base)
		form.Set("start_data_date", q.Start.UTC().Format("2006-01-02")+"%")
		var out []Dataset
		if err := c.post(ctx, form, &out); err != nil {
			span.RecordError(err)
			return nil, err
		}
		return out, nil
	}

	if q.End.Before(q.Start) {
		return nil, fmt.Errorf("archive: query end %s precedes start %s", q.End, q.Start)
	}
	var (
		out  []Dataset
		seen = make(map[int]bool)
	)
	for day := q.Start.UTC().Truncate(24 * time.Hour); !day.After(q.End); day = day.AddDate(0, 0, 1) {
		form := cloneValues(base)
		form.Set("end_data_date", day.Format("2006-01-02")+"%")
		var page []Dataset
		if err := c.post(ctx, form, &page); err != nil {
			span.RecordError(err)
			return nil, err
		}
		for _, d := range page {
			if seen[d.ID] || d.StartData.Before(q.Start) || d.EndData.After(q.End) {
				continue
			}
			seen[d.ID] = true
			out = append(out, d)
		}
	}
	span.SetAttributes(attribute.Int("datasets", len(out)))
	return out, nil
}

// Download fetches the lines of one dataset.
func (c *Client) Download(ctx context.Context, t DataType, id int) ([]string, error) {
	ctx, span := otel.Tracer("github.com/signalsfoundry/slr-reduction/internal/archive").Start(ctx, "archive.Download")
	defer span.End()
	span.SetAttributes(attribute.String("data_type", string(t)), attribute.Int("id", id))

	form := url.Values{
		"action":    {"data-download"},
		"data_type": {string(t)},
		"id":        {strconv.Itoa(id)},
	}
	var lines []string
	if err := c.post(ctx, form, &lines); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return lines, nil
}

// Reader joins downloaded lines for the text parsers.
func Reader(lines []string) io.Reader {
	return strings.NewReader(strings.Join(lines, "\n"))
}

func (c *Client) post(ctx context.Context, form url.Values, out any) error {
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	c.log.Debug(ctx, "archive request",
		logging.String("action", form.Get("action")),
		logging.String("data_type", form.Get("data_type")),
		logging.Int("status", resp.StatusCode),
		logging.Any("elapsed", time.Since(start).String()),
	)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: %s", ErrUnavailable, form.Get("action"), resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s reply: %v", ErrUnavailable, form.Get("action"), err)
	}
	return nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
