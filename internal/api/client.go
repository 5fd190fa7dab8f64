// Package api is the REST client for the data-platform API.
package api

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

	"fsconsole/internal/model"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// RateLimit caps requests per second; zero disables throttling.
	RateLimit  float64
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *Metrics
}

type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
	metrics *Metrics
}

func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, errors.New("api url is empty")
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url must be http(s): %s", raw)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		base:    u,
		token:   strings.TrimSpace(opts.Token),
		http:    hc,
		log:     log.With(zap.String("component", "api")),
		metrics: opts.Metrics,
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c, nil
}

// ListQuery filters a list request. Name is a substring match unless ExactName is set.
type ListQuery struct {
	Tag       string
	Name      string
	ExactName bool
	Labels    model.Labels
	Iter      *int
}

// QueryFromParams builds a ListQuery from filter parameters (tag/name/labels/iter).
func QueryFromParams(params map[string]string) ListQuery {
	q := ListQuery{
		Tag:    params["tag"],
		Name:   params["name"],
		Labels: model.ParseLabels(params["labels"]),
	}
	if s, ok := params["iter"]; ok {
		if n, err := strconv.Atoi(s); err == nil {
			q.Iter = &n
		}
	}
	return q
}

// List fetches items of kind for a project. The platform returns them newest-first.
func (c *Client) List(ctx context.Context, project string, kind model.Kind, q ListQuery) ([]model.Item, error) {
	v := url.Values{}
	if q.Tag != "" {
		v.Set("tag", q.Tag)
	}
	if q.Name != "" {
		if q.ExactName {
			v.Set("name", q.Name)
		} else {
			v.Set("name", "~"+q.Name)
		}
	}
	for _, l := range q.Labels {
		if l.Value == "" {
			v.Add("label", l.Key)
		} else {
			v.Add("label", l.Key+"="+l.Value)
		}
	}
	if q.Iter != nil {
		v.Set("iter", strconv.Itoa(*q.Iter))
	}
	if kind.IsArtifactFamily() {
		v.Set("category", artifactCategory(kind))
		v.Set("format", "full")
	}

	var resp map[string]json.RawMessage
	path := c.projectPath(project, kind.Collection())
	if _, err := c.do(ctx, "list_"+kind.Collection(), http.MethodGet, path, v, nil, &resp); err != nil {
		return nil, err
	}

	var list []json.RawMessage
	if raw, ok := resp[listField(kind)]; ok && len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode %s list: %w", kind, err)
		}
	}
	return parseItems(list, kind, project)
}

// Versions fetches every version of one named item under the tag filter.
func (c *Client) Versions(ctx context.Context, project string, kind model.Kind, name, tag string) ([]model.Item, error) {
	return c.List(ctx, project, kind, ListQuery{Tag: tag, Name: name, ExactName: true})
}

// Tags lists the tags used by items of kind in a project.
func (c *Client) Tags(ctx context.Context, project string, kind model.Kind) ([]string, error) {
	var resp struct {
		Tags []string `json:"tags"`
	}
	v := url.Values{}
	if kind.IsArtifactFamily() {
		v.Set("category", artifactCategory(kind))
	}
	path := c.projectPath(project, kind.Collection(), "*", "tags")
	if _, err := c.do(ctx, "tags_"+kind.Collection(), http.MethodGet, path, v, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Tags == nil {
		return []string{}, nil
	}
	return resp.Tags, nil
}

// AddTag points a new tag at the identified versions.
func (c *Client) AddTag(ctx context.Context, project, tag string, body TagBody) (int, error) {
	return c.do(ctx, "add_tag", http.MethodPost, c.projectPath(project, "tags", tag), nil, body, nil)
}

// EditTag moves oldTag to tag for the identified versions.
func (c *Client) EditTag(ctx context.Context, project, tag, oldTag string, body TagBody) (int, error) {
	return c.do(ctx, "edit_tag", http.MethodPut, c.projectPath(project, "tags", tag), nil, editTagBody{TagBody: body, OldTag: oldTag}, nil)
}

// DeleteTag removes the tag alias from the identified versions.
func (c *Client) DeleteTag(ctx context.Context, project, tag string, body TagBody) (int, error) {
	return c.do(ctx, "delete_tag", http.MethodDelete, c.projectPath(project, "tags", tag), nil, body, nil)
}

// UpdateMetadata patches labels and/or description of one version. ref is a tag or uid.
func (c *Client) UpdateMetadata(ctx context.Context, project string, kind model.Kind, name, ref string, patch MetadataPatch) (int, error) {
	path := c.projectPath(project, kind.Collection(), name, "references", ref)
	return c.do(ctx, "update_"+kind.Collection(), http.MethodPatch, path, nil, patch.wire(), nil)
}

func (c *Client) projectPath(project string, parts ...string) []string {
	return append([]string{"api", "v1", "projects", project}, parts...)
}

func (c *Client) do(ctx context.Context, op, method string, path []string, query url.Values, body any, out any) (int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, err
		}
	}

	u := *c.base
	escaped := make([]string, 0, len(path))
	for _, seg := range path {
		if seg == "*" {
			escaped = append(escaped, seg)
			continue
		}
		escaped = append(escaped, url.PathEscape(seg))
	}
	basePath := strings.TrimRight(u.Path, "/")
	baseRaw := strings.TrimRight(u.EscapedPath(), "/")
	u.Path = basePath + "/" + strings.Join(path, "/")
	u.RawPath = baseRaw + "/" + strings.Join(escaped, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("%s: encode body: %w", op, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.observe(op, 0, time.Since(start))
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		c.log.Warn("request failed", zap.String("op", op), zap.Error(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	c.metrics.observe(op, resp.StatusCode, time.Since(start))

	b, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%s: read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Op: op, Code: resp.StatusCode, Message: errorMessage(b)}
		c.log.Info("request rejected", zap.String("op", op), zap.Int("status", resp.StatusCode), zap.String("message", se.Message))
		return resp.StatusCode, se
	}
	c.log.Debug("request ok", zap.String("op", op), zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(start)))

	if out != nil && len(bytes.TrimSpace(b)) > 0 {
		if err := json.Unmarshal(b, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return resp.StatusCode, nil
}

// errorMessage extracts {"detail": ...} style messages, falling back to the raw body.
func errorMessage(b []byte) string {
	var body struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		switch d := body.Detail.(type) {
		case string:
			return d
		case nil:
		default:
			if enc, err := json.Marshal(d); err == nil {
				return string(enc)
			}
		}
	}
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func listField(kind model.Kind) string {
	switch kind {
	case model.KindFeatureSet:
		return "feature_sets"
	case model.KindFeatureVector:
		return "feature_vectors"
	default:
		return "artifacts"
	}
}

func artifactCategory(kind model.Kind) string {
	switch kind {
	case model.KindModel:
		return "model"
	case model.KindDataset:
		return "dataset"
	default:
		return "other"
	}
}
