package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/semmidev/backupkeeper/internal/api"
	"github.com/semmidev/backupkeeper/internal/domain"
)

// adminClient talks to the admin API of a running "serve".
type adminClient struct {
	baseURL   string
	http      *http.Client
	requester string
}

func newAdminClient(addr string, timeout time.Duration) *adminClient {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		if strings.HasPrefix(base, ":") {
			base = "localhost" + base
		}
		base = "http://" + base
	}
	return &adminClient{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *adminClient) Status(ctx context.Context) (domain.Status, error) {
	var status domain.Status
	err := c.do(ctx, http.MethodGet, "/api/system/backups/status", nil, &status)
	return status, err
}

func (c *adminClient) UpdateSchedule(ctx context.Context, hours int, enabled bool) (domain.Status, error) {
	var status domain.Status
	body := api.ScheduleRequest{FrequencyHours: &hours, Enabled: &enabled}
	err := c.do(ctx, http.MethodPost, "/api/system/backups/schedule", body, &status)
	return status, err
}

func (c *adminClient) ListBackups(ctx context.Context) ([]domain.BackupRecord, error) {
	var records []domain.BackupRecord
	err := c.do(ctx, http.MethodGet, "/api/system/backups", nil, &records)
	return records, err
}

// RunFull takes a manual full backup, recorded under requester when it is
// set.
func (c *adminClient) RunFull(ctx context.Context) (domain.Status, error) {
	var status domain.Status
	err := c.do(ctx, http.MethodPost, "/api/system/backups/run", nil, &status)
	return status, err
}

func (c *adminClient) Cleanup(ctx context.Context) (api.CleanupResponse, error) {
	var resp api.CleanupResponse
	err := c.do(ctx, http.MethodPost, "/api/system/backups/cleanup", nil, &resp)
	return resp, err
}

func (c *adminClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.requester != "" {
		req.Header.Set(api.RequesterHeader, c.requester)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
			return fmt.Errorf("%s %s: %s", method, path, resp.Status)
		}
		return fmt.Errorf("%s %s: %s", method, path, apiErr.Message)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
