// Package remote talks to the hosted record-management API over JSON/HTTP.
package remote

import (
	"bytes"
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

	"github.com/rs/zerolog"

	"github.com/mediflow/frontdesk/internal/platform/records"
)

const (
	HeaderProjectID = "X-Project-ID"
	HeaderPublicKey = "X-Public-Key"
)

type Config struct {
	BaseURL   string
	ProjectID string
	PublicKey string
	// Timeout of zero leaves requests unbounded.
	Timeout time.Duration
	// Logger receives one event per request; nil discards them.
	Logger *zerolog.Logger
}

type Gateway struct {
	base      string
	projectID string
	publicKey string
	http      *http.Client
	logger    zerolog.Logger
}

func New(cfg Config) (*Gateway, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid record API url %q", cfg.BaseURL)
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Gateway{
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		projectID: cfg.ProjectID,
		publicKey: cfg.PublicKey,
		http:      &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}, nil
}

// wire shapes of the hosted API

type wirePredicate struct {
	FieldName string `json:"fieldName"`
	Operator  string `json:"Operator"`
	Values    []any  `json:"values"`
}

type wirePaging struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type wireExpand struct {
	Name  string `json:"name"`
	Alias string `json:"alias"`
}

type wireOrder struct {
	FieldName string `json:"fieldName"`
	SortType  string `json:"sorttype"`
}

type wireQuery struct {
	Fields     []string        `json:"fields,omitempty"`
	PagingInfo *wirePaging     `json:"pagingInfo,omitempty"`
	Where      []wirePredicate `json:"where,omitempty"`
	Expands    []wireExpand    `json:"expands,omitempty"`
	OrderBy    []wireOrder     `json:"orderBy,omitempty"`
}

type fetchEnvelope struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    []records.Record `json:"data"`
	Total   int              `json:"total"`
}

type oneEnvelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    records.Record `json:"data"`
}

func toWire(q records.Query) wireQuery {
	w := wireQuery{Fields: q.Fields}
	if q.Paging != nil {
		w.PagingInfo = &wirePaging{Limit: q.Paging.Limit, Offset: q.Paging.Offset}
	}
	for _, p := range q.Where {
		vals := make([]any, len(p.Values))
		for i, v := range p.Values {
			if t, ok := v.(time.Time); ok {
				v = t.UTC().Format(time.RFC3339)
			}
			vals[i] = v
		}
		w.Where = append(w.Where, wirePredicate{FieldName: p.Field, Operator: string(p.Operator), Values: vals})
	}
	for _, e := range q.Expands {
		w.Expands = append(w.Expands, wireExpand{Name: e.Name, Alias: e.Alias})
	}
	for _, o := range q.OrderBy {
		w.OrderBy = append(w.OrderBy, wireOrder{FieldName: o.Field, SortType: string(o.Direction)})
	}
	return w
}

func (g *Gateway) recordsURL(table string) string {
	return g.base + "/tables/" + url.PathEscape(table) + "/records"
}

// do sends a request and logs its outcome. Failures log at warn level.
func (g *Gateway) do(ctx context.Context, method, u string, body, out any) (int, error) {
	start := time.Now()
	code, err := g.send(ctx, method, u, body, out)

	evt := g.logger.Debug()
	if err != nil {
		evt = g.logger.Warn().Err(err)
	}
	path := u
	if parsed, perr := url.Parse(u); perr == nil {
		path = parsed.Path
	}
	evt.Str("method", method).
		Str("path", path).
		Int("status", code).
		Dur("latency", time.Since(start)).
		Msg("record API request")
	return code, err
}

// send encodes body as JSON and decodes a 2xx response into out. It returns
// the status code so callers can map 404.
func (g *Gateway) send(ctx context.Context, method, u string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderProjectID, g.projectID)
	req.Header.Set(HeaderPublicKey, g.publicKey)

	resp, err := g.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &env) == nil && env.Message != "" {
			return resp.StatusCode, &statusError{code: resp.StatusCode, msg: env.Message}
		}
		return resp.StatusCode, &statusError{code: resp.StatusCode, msg: http.StatusText(resp.StatusCode)}
	}
	if out != nil {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string { return fmt.Sprintf("status %d: %s", e.code, e.msg) }

func remoteErr(op, table string, err error) error {
	var se *statusError
	if errors.As(err, &se) {
		return &records.RemoteError{Op: op, Table: table, Message: se.msg, Err: err}
	}
	return &records.RemoteError{Op: op, Table: table, Err: err}
}

func (g *Gateway) FetchMany(ctx context.Context, table string, q records.Query) (*records.FetchResult, error) {
	var env fetchEnvelope
	if _, err := g.do(ctx, http.MethodPost, g.recordsURL(table)+"/query", toWire(q), &env); err != nil {
		return nil, remoteErr("fetch", table, err)
	}
	if !env.Success {
		return nil, &records.RemoteError{Op: "fetch", Table: table, Message: env.Message, Rejected: true}
	}
	normalize(env.Data)
	return &records.FetchResult{Data: env.Data, Count: env.Total}, nil
}

func (g *Gateway) FetchOne(ctx context.Context, table string, id int64, q records.Query) (records.Record, error) {
	u := g.recordsURL(table) + "/" + strconv.FormatInt(id, 10)
	var env oneEnvelope
	code, err := g.do(ctx, http.MethodPost, u, toWire(q), &env)
	if code == http.StatusNotFound {
		return nil, &records.NotFoundError{Table: table, ID: id}
	}
	if err != nil {
		return nil, remoteErr("fetch", table, err)
	}
	if !env.Success {
		return nil, &records.RemoteError{Op: "fetch", Table: table, Message: env.Message, Rejected: true}
	}
	if env.Data == nil {
		return nil, &records.NotFoundError{Table: table, ID: id}
	}
	normalize([]records.Record{env.Data})
	return env.Data, nil
}

func (g *Gateway) mutate(ctx context.Context, op, method, table string, recs []records.Record) (*records.MutationResult, error) {
	body := map[string]any{"records": recs}
	var res records.MutationResult
	if _, err := g.do(ctx, method, g.recordsURL(table), body, &res); err != nil {
		return nil, remoteErr(op, table, err)
	}
	for i := range res.Results {
		if res.Results[i].Data != nil {
			normalize([]records.Record{res.Results[i].Data})
		}
	}
	return &res, nil
}

func (g *Gateway) CreateMany(ctx context.Context, table string, recs []records.Record) (*records.MutationResult, error) {
	return g.mutate(ctx, "create", http.MethodPost, table, recs)
}

func (g *Gateway) UpdateMany(ctx context.Context, table string, recs []records.Record) (*records.MutationResult, error) {
	for _, rec := range recs {
		if _, ok := rec.ID(); !ok {
			return nil, &records.RemoteError{Op: "update", Table: table, Err: records.ErrMissingID}
		}
	}
	return g.mutate(ctx, "update", http.MethodPut, table, recs)
}

func (g *Gateway) DeleteMany(ctx context.Context, table string, ids []int64) (*records.DeleteResult, error) {
	body := map[string]any{"RecordIds": ids}
	var res records.DeleteResult
	if _, err := g.do(ctx, http.MethodDelete, g.recordsURL(table), body, &res); err != nil {
		return nil, remoteErr("delete", table, err)
	}
	return &res, nil
}

// normalize turns json.Number values into int64 or float64 so records read
// the same as those from the other drivers.
func normalize(rows []records.Record) {
	for _, r := range rows {
		for k, v := range r {
			switch tv := v.(type) {
			case json.Number:
				if n, err := tv.Int64(); err == nil {
					r[k] = n
				} else if f, err := tv.Float64(); err == nil {
					r[k] = f
				}
			case map[string]any:
				nested := records.Record(tv)
				normalize([]records.Record{nested})
				r[k] = nested
			}
		}
	}
}

var _ records.Gateway = (*Gateway)(nil)
