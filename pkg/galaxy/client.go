// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package galaxy is a client for the parts of the Galaxy REST API that
// import, launch and collect workflows.
//
// Requests authenticate with the x-api-key header. Responses with a status of
// 400 or above are returned as *errors.RemoteError carrying Galaxy's err_msg.
package galaxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tombee/galaxyrun/pkg/errors"
	"github.com/tombee/galaxyrun/pkg/httpclient"
)

// UploadToolID is the Galaxy tool that ingests uploaded files.
const UploadToolID = "upload1"

// Client talks to one Galaxy server.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	apiKey     string
}

var _ API = (*Client)(nil)

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient sets the HTTP client. By default one is built with
// httpclient.DefaultConfig.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = client
		return nil
	}
}

// WithAPIKey sets the API key sent on every request.
func WithAPIKey(apiKey string) Option {
	return func(c *Client) error {
		c.apiKey = apiKey
		return nil
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &errors.ConfigError{Key: "galaxy.url", Reason: fmt.Sprintf("invalid server URL %q", baseURL), Cause: err}
	}

	c := &Client{baseURL: u}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.httpClient == nil {
		hc, err := httpclient.New(httpclient.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create http client: %w", err)
		}
		c.httpClient = hc
	}
	return c, nil
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// ListWorkflows lists the stored workflows visible to the API key.
func (c *Client) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	var workflows []Workflow
	if err := c.getJSON(ctx, "list workflows", "/api/workflows", &workflows); err != nil {
		return nil, err
	}
	return workflows, nil
}

// ImportWorkflow uploads a workflow export as a new stored workflow.
func (c *Client) ImportWorkflow(ctx context.Context, raw []byte) (*Workflow, error) {
	if !json.Valid(raw) {
		return nil, &errors.ParseError{Source: "workflow import", Reason: "definition is not valid JSON"}
	}
	body := map[string]any{"workflow": json.RawMessage(raw)}

	var wf Workflow
	if err := c.postJSON(ctx, "import workflow", "/api/workflows", body, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// ShowWorkflow returns a stored workflow's inputs and steps.
func (c *Client) ShowWorkflow(ctx context.Context, id string) (*WorkflowDetail, error) {
	var detail WorkflowDetail
	if err := c.getJSON(ctx, "show workflow", "/api/workflows/"+url.PathEscape(id), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// RunWorkflow launches a stored workflow.
func (c *Client) RunWorkflow(ctx context.Context, req RunRequest) (*RunResponse, error) {
	var resp RunResponse
	if err := c.postJSON(ctx, "run workflow", "/api/workflows", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateHistory creates an empty history.
func (c *Client) CreateHistory(ctx context.Context, name string) (*History, error) {
	var h History
	if err := c.postJSON(ctx, "create history", "/api/histories", map[string]string{"name": name}, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ShowHistory returns a history with its aggregate state counts.
func (c *Client) ShowHistory(ctx context.Context, id string) (*History, error) {
	var h History
	if err := c.getJSON(ctx, "show history", "/api/histories/"+url.PathEscape(id), &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ListContents lists the datasets of a history.
func (c *Client) ListContents(ctx context.Context, historyID string) ([]ContentItem, error) {
	var items []ContentItem
	if err := c.getJSON(ctx, "list history contents", contentsPath(historyID, ""), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ShowDataset returns one dataset of a history.
func (c *Client) ShowDataset(ctx context.Context, historyID, datasetID string) (*Dataset, error) {
	var ds Dataset
	if err := c.getJSON(ctx, "show dataset", contentsPath(historyID, datasetID), &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Download streams a dataset's content. The request is made once.
func (c *Client) Download(ctx context.Context, historyID, datasetID string) (io.ReadCloser, error) {
	resp, err := c.do(httpclient.WithoutRetry(ctx), "download dataset", http.MethodGet,
		contentsPath(historyID, datasetID)+"/display", nil, "")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Upload submits a local file to a history through the upload tool. The
// request is made once. A status of 400 or above is returned both in the
// result and as a RemoteError.
func (c *Client) Upload(ctx context.Context, historyID, path, fileType string) (*UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errors.LocalIOError{Op: "open", Path: path, Cause: err}
	}
	defer f.Close()

	inputs, err := json.Marshal(map[string]any{
		"files_0|NAME": filepath.Base(path),
		"files_0|type": "upload_dataset",
		"file_type":    fileType,
		"dbkey":        "?",
	})
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, historyID, inputs, f))
	}()

	resp, err := c.do(httpclient.WithoutRetry(ctx), "upload dataset", http.MethodPost, "/api/tools", pr, mw.FormDataContentType())
	if err != nil {
		pr.CloseWithError(err)
		var remote *errors.RemoteError
		if errors.As(err, &remote) {
			return &UploadResult{StatusCode: remote.StatusCode}, err
		}
		return nil, err
	}
	defer resp.Body.Close()

	result := &UploadResult{StatusCode: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return result, &errors.RemoteError{Operation: "upload dataset", StatusCode: resp.StatusCode, Message: "undecodable response", Cause: err}
	}
	return result, nil
}

func writeUploadForm(mw *multipart.Writer, historyID string, inputs []byte, file *os.File) error {
	if err := mw.WriteField("tool_id", UploadToolID); err != nil {
		return err
	}
	if err := mw.WriteField("history_id", historyID); err != nil {
		return err
	}
	if err := mw.WriteField("inputs", string(inputs)); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("files_0|file_data", filepath.Base(file.Name()))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return mw.Close()
}

func contentsPath(historyID, datasetID string) string {
	p := "/api/histories/" + url.PathEscape(historyID) + "/contents"
	if datasetID != "" {
		p += "/" + url.PathEscape(datasetID)
	}
	return p
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	resp, err := c.do(ctx, op, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeBody(op, resp, out)
}

func (c *Client) postJSON(ctx context.Context, op, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", op, err)
	}
	resp, err := c.do(ctx, op, http.MethodPost, path, bytes.NewReader(data), "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeBody(op, resp, out)
}

func decodeBody(op string, resp *http.Response, out any) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &errors.RemoteError{Operation: op, StatusCode: resp.StatusCode, Message: "undecodable response", Cause: err}
	}
	return nil
}

// do sends a request and turns transport failures and error statuses into
// RemoteErrors. Context cancellation is returned unwrapped by type so callers
// can tell an interruption from a remote failure.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(httpclient.APIKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return nil, &errors.RemoteError{Operation: op, Message: "request failed", Cause: err}
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, &errors.RemoteError{
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp),
		}
	}
	return resp, nil
}

// errorMessage extracts Galaxy's err_msg, falling back to the raw body.
func errorMessage(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		ErrMsg string `json:"err_msg"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.ErrMsg != "" {
		return payload.ErrMsg
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return msg
}
