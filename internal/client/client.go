// Package client is the HTTP adapter between the workflow library and
// the job service. It satisfies workflow.ImportBackend and
// workflow.ExportBackend against the REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go-dataport/internal/features/exports"
	"go-dataport/internal/features/imports"
	"go-dataport/internal/features/template"
)

// Client talks to one go-dataport server on behalf of one user.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a client for the given server. The token is sent as a
// bearer token on every request.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

type apiError struct {
	Error string `json:"error"`
}

// decodeError turns a non-2xx response into a Go error, preferring the
// server's error message over the raw status line.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
	}
	return fmt.Errorf("%s", resp.Status)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// Upload ships a spreadsheet as multipart form data and returns the
// created job, which may already carry a preview for small files.
func (c *Client) Upload(ctx context.Context, templateID, path string, opts imports.ImportOptions) (imports.ImportJob, error) {
	var job imports.ImportJob

	file, err := os.Open(path)
	if err != nil {
		return job, err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("template_id", templateID); err != nil {
		return job, err
	}
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return job, err
	}
	if err := writer.WriteField("options", string(optsJSON)); err != nil {
		return job, err
	}
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return job, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return job, err
	}
	if err := writer.Close(); err != nil {
		return job, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/import/jobs", &buf)
	if err != nil {
		return job, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	err = c.do(req, &job)
	return job, err
}

func (c *Client) FetchJob(ctx context.Context, id string) (imports.ImportJob, error) {
	var job imports.ImportJob
	err := c.getJSON(ctx, "/api/import/jobs/"+id, &job)
	return job, err
}

// ListJobs returns the caller's import jobs, most recent first.
func (c *Client) ListJobs(ctx context.Context) ([]imports.ImportJob, error) {
	var jobs []imports.ImportJob
	err := c.getJSON(ctx, "/api/import/jobs", &jobs)
	return jobs, err
}

// ResolveDuplicates submits the row-to-resolution mapping. Row numbers
// travel as string keys, matching the JSON object format the server
// expects.
func (c *Client) ResolveDuplicates(ctx context.Context, id string, mapping map[int]imports.Resolution) (imports.ImportJob, error) {
	body := make(map[string]imports.Resolution, len(mapping))
	for row, res := range mapping {
		body[strconv.Itoa(row)] = res
	}
	var job imports.ImportJob
	err := c.postJSON(ctx, "/api/import/jobs/"+id+"/duplicates", body, &job)
	return job, err
}

func (c *Client) Approve(ctx context.Context, id string, acknowledgeWarnings bool) (imports.ImportJob, error) {
	var job imports.ImportJob
	body := map[string]bool{"acknowledge_warnings": acknowledgeWarnings}
	err := c.postJSON(ctx, "/api/import/jobs/"+id+"/approve", body, &job)
	return job, err
}

func (c *Client) Retry(ctx context.Context, id string) (imports.ImportJob, error) {
	var job imports.ImportJob
	err := c.postJSON(ctx, "/api/import/jobs/"+id+"/retry", struct{}{}, &job)
	return job, err
}

func (c *Client) Cancel(ctx context.Context, id string) (imports.ImportJob, error) {
	var job imports.ImportJob
	err := c.postJSON(ctx, "/api/import/jobs/"+id+"/cancel", struct{}{}, &job)
	return job, err
}

// Templates lists the mapping templates available for import.
func (c *Client) Templates(ctx context.Context) ([]template.MappingTemplate, error) {
	var out []template.MappingTemplate
	err := c.getJSON(ctx, "/api/templates", &out)
	return out, err
}

func (c *Client) Categories(ctx context.Context) ([]exports.Category, error) {
	var out []exports.Category
	err := c.getJSON(ctx, "/api/export/categories", &out)
	return out, err
}

func (c *Client) StartExport(ctx context.Context, categories []string, privacy exports.ExportPrivacy) (exports.ExportJob, error) {
	var job exports.ExportJob
	body := map[string]interface{}{
		"categories": categories,
		"privacy":    privacy,
	}
	err := c.postJSON(ctx, "/api/export/jobs", body, &job)
	return job, err
}

func (c *Client) FetchExport(ctx context.Context, id string) (exports.ExportJob, error) {
	var job exports.ExportJob
	err := c.getJSON(ctx, "/api/export/jobs/"+id, &job)
	return job, err
}

// Download opens the archive stream behind a job's download URL. The
// caller owns the returned reader.
func (c *Client) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	if !strings.HasPrefix(url, "http") {
		url = c.baseURL + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp.Body, nil
}
