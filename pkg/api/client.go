package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Error is a non-success response from the agent.
type Error struct {
	StatusCode int
	Kind       string
	Message    string
	Traceback  string
}

func (e *Error) Error() string {
	if e.Traceback != "" {
		return fmt.Sprintf("agent returned %d: %s (%s)", e.StatusCode, e.Message, e.Traceback)
	}
	return fmt.Sprintf("agent returned %d: %s", e.StatusCode, e.Message)
}

// Client drives an agent's directives over HTTP. GET directives are retried
// according to Retry; state-changing directives are sent exactly once.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Retry   RetryConfig
}

// NewClient creates a client for the agent at baseURL. A zero timeout leaves
// waited executions unbounded.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Retry:   DefaultRetryConfig(),
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := doWithRetry(c.HTTP, c.Retry, req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return decode(resp, out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.send(req, path, out)
}

func (c *Client) postMultipart(ctx context.Context, path string, fields map[string]string, fileField, fileName string, content io.Reader, out interface{}) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		for k, v := range fields {
			if err := mw.WriteField(k, v); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		part, err := mw.CreateFormFile(fileField, fileName)
		if err == nil {
			_, err = io.Copy(part, content)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, pr)
	if err != nil {
		pr.Close()
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req, path, out)
}

func (c *Client) send(req *http.Request, path string, out interface{}) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return decode(resp, out)
}

func decode(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var env Response
		if json.Unmarshal(body, &env) != nil || env.Message == "" {
			env.Message = strings.TrimSpace(string(body))
		}
		return &Error{StatusCode: resp.StatusCode, Kind: env.ErrorKind, Message: env.Message, Traceback: env.Traceback}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func flag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (c *Client) Index(ctx context.Context) (IndexResponse, error) {
	var r IndexResponse
	return r, c.get(ctx, "/", nil, &r)
}

func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var r StatusResponse
	return r, c.get(ctx, "/status", nil, &r)
}

// SetStatus replaces the agent status. A nil description clears it.
func (c *Client) SetStatus(ctx context.Context, status string, description *string) error {
	form := url.Values{"status": {status}}
	if description != nil {
		form.Set("description", *description)
	}
	return c.postForm(ctx, "/status", form, nil)
}

func (c *Client) Pin(ctx context.Context) (PinResponse, error) {
	var r PinResponse
	return r, c.postForm(ctx, "/pinning", url.Values{}, &r)
}

func (c *Client) Execute(ctx context.Context, req ExecRequest) (ExecResponse, error) {
	form := url.Values{
		"command": {req.Target},
		"shell":   {flag(req.Shell)},
		"waite":   {flag(req.Wait)},
	}
	if req.Cwd != "" {
		form.Set("cwd", req.Cwd)
	}
	for _, a := range req.Args {
		form.Add("args", a)
	}
	var r ExecResponse
	return r, c.postForm(ctx, "/execute", form, &r)
}

func (c *Client) ExecPy(ctx context.Context, req ExecRequest) (ExecResponse, error) {
	form := url.Values{
		"filepath": {req.Target},
		"waite":    {flag(req.Wait)},
	}
	if req.Cwd != "" {
		form.Set("cwd", req.Cwd)
	}
	var r ExecResponse
	return r, c.postForm(ctx, "/execpy", form, &r)
}

func (c *Client) Kill(ctx context.Context) error {
	return c.postForm(ctx, "/kill", url.Values{}, nil)
}

func (c *Client) Logs(ctx context.Context) (LogsResponse, error) {
	var r LogsResponse
	return r, c.get(ctx, "/logging", nil, &r)
}

func (c *Client) System(ctx context.Context) (SystemResponse, error) {
	var r SystemResponse
	return r, c.get(ctx, "/system", nil, &r)
}

func (c *Client) Environ(ctx context.Context) (EnvironResponse, error) {
	var r EnvironResponse
	return r, c.get(ctx, "/environ", nil, &r)
}

func (c *Client) Path(ctx context.Context) (PathResponse, error) {
	var r PathResponse
	return r, c.get(ctx, "/path", nil, &r)
}

func (c *Client) Journal(ctx context.Context, limit int) (JournalResponse, error) {
	var r JournalResponse
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return r, c.get(ctx, "/journal", q, &r)
}

// Mkdir creates a directory; mode zero lets the agent pick its default.
func (c *Client) Mkdir(ctx context.Context, path string, mode uint32) error {
	form := url.Values{"dirpath": {path}}
	if mode != 0 {
		form.Set("mode", strconv.FormatUint(uint64(mode), 8))
	}
	return c.postForm(ctx, "/mkdir", form, nil)
}

func (c *Client) Mktemp(ctx context.Context, prefix, suffix, dir string) (string, error) {
	var r PathResponse
	err := c.postForm(ctx, "/mktemp", url.Values{"prefix": {prefix}, "suffix": {suffix}, "dirpath": {dir}}, &r)
	return r.Filepath, err
}

func (c *Client) Mkdtemp(ctx context.Context, prefix, suffix, dir string) (string, error) {
	var r PathResponse
	err := c.postForm(ctx, "/mkdtemp", url.Values{"prefix": {prefix}, "suffix": {suffix}, "dirpath": {dir}}, &r)
	return r.Dirpath, err
}

// Store uploads content to path on the agent. A non-empty sha256 is verified
// by the agent after writing.
func (c *Client) Store(ctx context.Context, path string, content io.Reader, sha256 string) error {
	fields := map[string]string{"filepath": path}
	if sha256 != "" {
		fields["sha256"] = sha256
	}
	return c.postMultipart(ctx, "/store", fields, "file", "upload", content, nil)
}

// Retrieve streams the file at path into w and returns the agent-reported
// SHA-256.
func (c *Client) Retrieve(ctx context.Context, path string, w io.Writer) (string, error) {
	form := url.Values{"filepath": {path}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/retrieve", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("post /retrieve: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", decode(resp, nil)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("copy: %w", err)
	}
	return resp.Header.Get(ChecksumHeader), nil
}

// Extract uploads a zip archive and unpacks it into dir on the agent.
func (c *Client) Extract(ctx context.Context, dir string, archive io.Reader) error {
	return c.postMultipart(ctx, "/extract", map[string]string{"dirpath": dir}, "zipfile", "archive.zip", archive, nil)
}

func (c *Client) Remove(ctx context.Context, path string, recursive, force bool) error {
	form := url.Values{"path": {path}, "recursive": {flag(recursive)}, "force": {flag(force)}}
	return c.postForm(ctx, "/remove", form, nil)
}

