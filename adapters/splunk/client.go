package splunk

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"sleuth/domain/core"
	"sleuth/domain/investigation"
	"sleuth/ports"
)

// ClientConfig holds Splunk REST API connection settings
type ClientConfig struct {
	BaseURL   string // e.g. https://splunk.internal:8089
	Username  string
	Password  string
	Token     string // bearer token; takes precedence over basic auth
	VerifySSL bool
}

// Client executes SPL against the Splunk REST export endpoint. It implements
// QueryExecutorPort; the scheduler owns the timeout via context.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient creates a Splunk REST client
func NewClient(cfg ClientConfig) *Client {
	transport := &http.Transport{}
	if !cfg.VerifySSL {
		// Self-signed certificates are the norm on the management port.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Transport: transport},
	}
}

// exportRow is one line of the export endpoint's streaming JSON output
type exportRow struct {
	Result  map[string]any `json:"result"`
	Preview bool           `json:"preview"`
	LastRow bool           `json:"lastrow"`
}

// Execute runs the plan through /services/search/jobs/export and collects
// the streamed results. Transport failures and timeouts surface as the
// transient step errors the scheduler retries.
func (c *Client) Execute(ctx context.Context, plan investigation.QueryPlan) (*ports.QueryResult, error) {
	searchText := plan.QueryText
	if !strings.HasPrefix(strings.TrimSpace(strings.ToLower(searchText)), "search ") &&
		!strings.HasPrefix(strings.TrimSpace(searchText), "|") {
		searchText = "search " + searchText
	}

	form := url.Values{}
	form.Set("search", searchText)
	form.Set("output_mode", "json")
	form.Set("earliest_time", plan.Window.Start.Time().Format("2006-01-02T15:04:05.000-07:00"))
	form.Set("latest_time", plan.Window.End.Time().Format("2006-01-02T15:04:05.000-07:00"))
	if plan.MaxRows > 0 {
		form.Set("max_count", fmt.Sprintf("%d", plan.MaxRows))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/services/search/jobs/export", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	} else {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", core.ErrQueryTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrQueryTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: splunk returned status %d", core.ErrQueryTransport, resp.StatusCode)
		}
		return nil, fmt.Errorf("splunk query rejected (status %d): %s", resp.StatusCode, string(body))
	}

	return c.collectResults(ctx, resp.Body, plan.MaxRows)
}

// collectResults parses the newline-delimited JSON stream of the export API
func (c *Client) collectResults(ctx context.Context, body io.Reader, maxRows int) (*ports.QueryResult, error) {
	result := &ports.QueryResult{}
	fieldSet := make(map[string]bool)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrQueryTimeout, ctx.Err())
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var row exportRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			log.Printf("[SplunkClient] Skipping unparseable export row: %v", err)
			continue
		}
		if row.Preview || row.Result == nil {
			continue
		}

		result.Events = append(result.Events, row.Result)
		for field := range row.Result {
			fieldSet[field] = true
		}
		if maxRows > 0 && len(result.Events) >= maxRows {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", core.ErrQueryTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrQueryTransport, err)
	}

	result.TotalCount = len(result.Events)
	for field := range fieldSet {
		result.Fields = append(result.Fields, field)
	}
	return result, nil
}
