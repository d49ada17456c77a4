package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bunchee/internal/core"
)

const (
	ChartDataPath    = "/chart-data"
	MonthlyStatsPath = "/monthly-stats"
)

var (
	ErrMalformedChartData = errors.New("malformed chart data")
	ErrMalformedStats     = errors.New("malformed monthly stats")
)

// Filter carries the raw control values. They are forwarded without
// validation.
type Filter struct {
	Kind  string
	Month string
	Year  string
}

// Fetcher loads the two dashboard payloads. MonthlyStats returns nil stats
// and a nil error when the server reports no data.
type Fetcher interface {
	ChartData(ctx context.Context, f Filter) (core.ChartData, error)
	MonthlyStats(ctx context.Context, f Filter) (*core.MonthlyStats, error)
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("GET %s: status %d: %s", e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("GET %s: status %d", e.Path, e.StatusCode)
}

// DecodeError is returned when a response body is not the JSON it should be.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Client talks to the ledger server's dashboard endpoints.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

var _ Fetcher = (*Client)(nil)

// NewClient creates a client for the server at baseURL. token, when set, is
// sent as a bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ChartDataURL builds the chart-data request path and query.
func ChartDataURL(f Filter) string {
	q := url.Values{}
	q.Set("kind", f.Kind)
	q.Set("month", f.Month)
	q.Set("year", f.Year)
	return ChartDataPath + "?" + q.Encode()
}

// MonthlyStatsURL builds the monthly-stats request path and query.
func MonthlyStatsURL(f Filter) string {
	q := url.Values{}
	q.Set("month", f.Month)
	q.Set("year", f.Year)
	return MonthlyStatsPath + "?" + q.Encode()
}

// ChartData fetches and validates the pie chart payload.
func (c *Client) ChartData(ctx context.Context, f Filter) (core.ChartData, error) {
	body, err := c.get(ctx, ChartDataURL(f))
	if err != nil {
		return core.ChartData{}, err
	}
	return DecodeChartData(body)
}

// MonthlyStats fetches the monthly totals. A falsy body (null, false, 0, "")
// yields nil stats.
func (c *Client) MonthlyStats(ctx context.Context, f Filter) (*core.MonthlyStats, error) {
	body, err := c.get(ctx, MonthlyStatsURL(f))
	if err != nil {
		return nil, err
	}
	return DecodeMonthlyStats(body)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Path:       pathOnly(path),
			Message:    strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}

func pathOnly(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		return p[:i]
	}
	return p
}

// DecodeChartData parses a chart-data body. Both arrays must be present and
// of equal length, and every value must be a number.
func DecodeChartData(body []byte) (core.ChartData, error) {
	var wire struct {
		Labels *[]string   `json:"labels"`
		Values *[]*float64 `json:"values"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return core.ChartData{}, &DecodeError{Path: ChartDataPath, Err: err}
	}
	if wire.Labels == nil || wire.Values == nil {
		return core.ChartData{}, &DecodeError{Path: ChartDataPath, Err: fmt.Errorf("%w: labels and values are required", ErrMalformedChartData)}
	}
	if len(*wire.Labels) != len(*wire.Values) {
		return core.ChartData{}, &DecodeError{
			Path: ChartDataPath,
			Err:  fmt.Errorf("%w: %d labels but %d values", ErrMalformedChartData, len(*wire.Labels), len(*wire.Values)),
		}
	}
	values := make([]float64, len(*wire.Values))
	for i, v := range *wire.Values {
		if v == nil {
			return core.ChartData{}, &DecodeError{
				Path: ChartDataPath,
				Err:  fmt.Errorf("%w: value %d is null", ErrMalformedChartData, i),
			}
		}
		values[i] = *v
	}
	return core.ChartData{Labels: *wire.Labels, Values: values}, nil
}

// DecodeMonthlyStats parses a monthly-stats body. Falsy JSON values mean "no
// data" and return nil; any other non-object, or an object missing one of the
// three figures, is malformed.
func DecodeMonthlyStats(body []byte) (*core.MonthlyStats, error) {
	raw := bytes.TrimSpace(body)
	if len(raw) == 0 {
		return nil, &DecodeError{Path: MonthlyStatsPath, Err: io.ErrUnexpectedEOF}
	}
	if raw[0] != '{' {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, &DecodeError{Path: MonthlyStatsPath, Err: err}
		}
		if isFalsy(v) {
			return nil, nil
		}
		return nil, &DecodeError{Path: MonthlyStatsPath, Err: fmt.Errorf("%w: expected an object", ErrMalformedStats)}
	}

	var wire struct {
		Income  *float64 `json:"income"`
		Expense *float64 `json:"expense"`
		Balance *float64 `json:"balance"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &DecodeError{Path: MonthlyStatsPath, Err: err}
	}
	if wire.Income == nil || wire.Expense == nil || wire.Balance == nil {
		return nil, &DecodeError{Path: MonthlyStatsPath, Err: fmt.Errorf("%w: income, expense and balance are required", ErrMalformedStats)}
	}
	return &core.MonthlyStats{Income: *wire.Income, Expense: *wire.Expense, Balance: *wire.Balance}, nil
}

func isFalsy(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case float64:
		return x == 0
	case string:
		return x == ""
	default:
		return false
	}
}
