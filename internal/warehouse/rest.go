package warehouse

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"olist-ml/internal/dataset"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const statementsPath = "/api/v2/statements"

// RESTConfig configures a RESTSource.
type RESTConfig struct {
	// BaseURL is the account endpoint, e.g. https://<account>.snowflakecomputing.com.
	BaseURL   string
	Token     string
	TokenType string // KEYPAIR_JWT or OAUTH
	Database  string
	Schema    string
	Warehouse string
	Role      string
	Timeout   time.Duration
	// PollInterval is the wait between status checks of a running statement.
	PollInterval time.Duration
}

// RESTSource runs queries through the Snowflake SQL API.
type RESTSource struct {
	cfg     RESTConfig
	rest    *resty.Client
	metrics MetricsInterface
}

// NewREST builds a SQL API client.
func NewREST(cfg RESTConfig) *RESTSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.TokenType == "" {
		cfg.TokenType = "KEYPAIR_JWT"
	}
	r := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.Token).
		SetHeader("Accept", "application/json").
		SetHeader("X-Snowflake-Authorization-Token-Type", cfg.TokenType)
	return &RESTSource{cfg: cfg, rest: r}
}

// WithMetrics sets the metrics sink and returns s.
func (s *RESTSource) WithMetrics(m MetricsInterface) *RESTSource {
	s.metrics = m
	return s
}

type binding struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type statementReq struct {
	Statement string             `json:"statement"`
	Timeout   int                `json:"timeout,omitempty"`
	Database  string             `json:"database,omitempty"`
	Schema    string             `json:"schema,omitempty"`
	Warehouse string             `json:"warehouse,omitempty"`
	Role      string             `json:"role,omitempty"`
	Bindings  map[string]binding `json:"bindings,omitempty"`
}

type rowType struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type statementResp struct {
	Code               string `json:"code"`
	Message            string `json:"message"`
	StatementHandle    string `json:"statementHandle"`
	StatementStatusURL string `json:"statementStatusUrl"`
	ResultSetMetaData  struct {
		NumRows       int       `json:"numRows"`
		RowType       []rowType `json:"rowType"`
		PartitionInfo []struct {
			RowCount int `json:"rowCount"`
		} `json:"partitionInfo"`
	} `json:"resultSetMetaData"`
	Data [][]*string `json:"data"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Query submits q, waits for it and reads every result partition.
func (s *RESTSource) Query(ctx context.Context, q Query) (*dataset.Dataset, error) {
	stmt, args, err := q.Build(Question)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ds, err := s.run(ctx, stmt, args)
	if s.metrics != nil {
		s.metrics.QueryDurationObserve(time.Since(start).Seconds())
		if err != nil {
			s.metrics.QueryErrorsInc()
		}
	}
	if err != nil {
		log.Error().Err(err).Str("query", stmt).Msg("SQL API statement failed")
		return nil, fmt.Errorf("warehouse query: %w", err)
	}
	log.Debug().Str("query", stmt).Int("rows", ds.NumRows()).Dur("elapsed", time.Since(start)).
		Msg("SQL API statement completed")
	return ds, nil
}

func (s *RESTSource) run(ctx context.Context, stmt string, args []any) (*dataset.Dataset, error) {
	bindings, err := bind(args)
	if err != nil {
		return nil, err
	}
	body := statementReq{
		Statement: stmt,
		Timeout:   int(s.cfg.Timeout.Seconds()),
		Database:  s.cfg.Database,
		Schema:    s.cfg.Schema,
		Warehouse: s.cfg.Warehouse,
		Role:      s.cfg.Role,
		Bindings:  bindings,
	}

	res := &statementResp{}
	apiErr := &apiError{}
	resp, err := s.rest.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(res).
		SetError(apiErr).
		Post(statementsPath)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, apiErr); err != nil {
		return nil, err
	}

	handle := res.StatementHandle
	for resp.StatusCode() == http.StatusAccepted {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}
		res = &statementResp{}
		resp, err = s.fetch(ctx, handle, 0, res, apiErr)
		if err != nil {
			return nil, err
		}
	}

	meta := res.ResultSetMetaData
	data := res.Data
	for p := 1; p < len(meta.PartitionInfo); p++ {
		part := &statementResp{}
		if _, err := s.fetch(ctx, handle, p, part, apiErr); err != nil {
			return nil, fmt.Errorf("partition %d: %w", p, err)
		}
		data = append(data, part.Data...)
	}
	return decode(meta.RowType, data)
}

func (s *RESTSource) fetch(ctx context.Context, handle string, partition int, into *statementResp, apiErr *apiError) (*resty.Response, error) {
	req := s.rest.R().
		SetContext(ctx).
		SetPathParam("handle", handle).
		SetResult(into).
		SetError(apiErr)
	if partition > 0 {
		req.SetQueryParam("partition", strconv.Itoa(partition))
	}
	resp, err := req.Get(statementsPath + "/{handle}")
	if err != nil {
		return nil, err
	}
	return resp, checkStatus(resp, apiErr)
}

func checkStatus(resp *resty.Response, apiErr *apiError) error {
	if !resp.IsError() {
		return nil
	}
	if apiErr.Message != "" {
		return fmt.Errorf("snowflake: %d %s %s", resp.StatusCode(), apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("snowflake: %s", resp.Status())
}

// bind converts positional arguments to SQL API bindings, keyed from "1".
func bind(args []any) (map[string]binding, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]binding, len(args))
	for i, a := range args {
		var b binding
		switch v := a.(type) {
		case string:
			b = binding{Type: "TEXT", Value: v}
		case int:
			b = binding{Type: "FIXED", Value: strconv.Itoa(v)}
		case int64:
			b = binding{Type: "FIXED", Value: strconv.FormatInt(v, 10)}
		case float64:
			b = binding{Type: "REAL", Value: strconv.FormatFloat(v, 'g', -1, 64)}
		case bool:
			b = binding{Type: "BOOLEAN", Value: strconv.FormatBool(v)}
		case time.Time:
			b = binding{Type: "TIMESTAMP_NTZ", Value: strconv.FormatInt(v.UnixNano(), 10)}
		default:
			return nil, fmt.Errorf("%w: unsupported bind type %T", ErrInvalidQuery, a)
		}
		out[strconv.Itoa(i+1)] = b
	}
	return out, nil
}

// decode converts string-encoded result rows using the declared row types.
func decode(types []rowType, data [][]*string) (*dataset.Dataset, error) {
	names := make([]string, len(types))
	kinds := make([]dataset.Kind, len(types))
	known := make([]bool, len(types))
	raw := make([][]any, len(types))
	for j, t := range types {
		names[j] = t.Name
		kinds[j], known[j] = kindOf(t.Type)
		raw[j] = make([]any, 0, len(data))
	}
	for i, row := range data {
		if len(row) != len(types) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(types))
		}
		for j, cell := range row {
			if cell == nil {
				raw[j] = append(raw[j], nil)
				continue
			}
			v, err := restValue(*cell, types[j].Type)
			if err != nil {
				return nil, fmt.Errorf("column %s row %d: %w", types[j].Name, i, err)
			}
			raw[j] = append(raw[j], v)
		}
	}
	return assemble(names, kinds, known, raw)
}

// restValue decodes the SQL API's JSON encoding of dates (days since epoch)
// and timestamps (seconds.fraction, optionally followed by a tz offset).
func restValue(s, typ string) (any, error) {
	t := strings.ToUpper(typ)
	switch {
	case t == "DATE":
		days, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", s, err)
		}
		return time.Unix(days*86400, 0).UTC(), nil
	case strings.HasPrefix(t, "TIMESTAMP"):
		epoch := strings.Fields(s)
		if len(epoch) == 0 {
			return nil, fmt.Errorf("parse timestamp %q", s)
		}
		f, err := strconv.ParseFloat(epoch[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", s, err)
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), nil
	}
	return s, nil
}

// Close is a no-op; the SQL API is stateless.
func (s *RESTSource) Close() error { return nil }
