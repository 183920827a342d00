// Package crm implements the client side of the YonBIP CRM gateway: the
// client-credential token exchange and the handful of list/detail endpoints
// the membership lookup reads from. Responses are schema-fluid, so payloads
// are handed to callers as gjson documents rather than rigid structs.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/maqua/membership-api/internal/logger"
)

const requestTimeout = 15 * time.Second

// acceptedCodes are the envelope codes the gateway uses for success across
// its API generations.
var acceptedCodes = map[string]bool{
	"00000":  true,
	"200":    true,
	"200000": true,
}

// TokenProvider supplies a valid gateway access token.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Endpoints names the gateway base URL and the per-resource paths.
type Endpoints struct {
	GatewayURL        string
	FollowupList      string
	TaskList          string
	OpportunityList   string
	OpportunityDetail string
	CustomerDetail    string
	AddressList       string
}

// Filter is a single simpleVOs search condition.
type Filter struct {
	Field string
	Op    string
	Value string
}

// simpleVO renders the filter in the gateway's wire shape. Values for the
// like-family operators are wrapped in SQL wildcards unless the caller
// already supplied them.
func (f Filter) simpleVO() map[string]any {
	value := strings.TrimSpace(f.Value)
	wildcarded := strings.ContainsAny(value, "%_")
	switch strings.ToLower(strings.TrimSpace(f.Op)) {
	case "like":
		if !wildcarded {
			value = "%" + value + "%"
		}
	case "likeleft":
		if !strings.HasSuffix(value, "%") {
			value = "%" + value
		}
	case "likeright":
		if !strings.HasPrefix(value, "%") {
			value += "%"
		}
	}
	return map[string]any{
		"field":  f.Field,
		"op":     f.Op,
		"value1": value,
	}
}

// Client talks to the CRM gateway. One attempt per call, no retries.
type Client struct {
	log       *logger.Logger
	client    *http.Client
	tokens    TokenProvider
	endpoints Endpoints
}

// NewClient creates a gateway client.
func NewClient(log *logger.Logger, endpoints Endpoints, tokens TokenProvider) *Client {
	if log == nil {
		log = logger.Production()
	}
	endpoints.GatewayURL = trimRightSlash(endpoints.GatewayURL)
	return &Client{
		log:       log,
		client:    &http.Client{Timeout: requestTimeout},
		tokens:    tokens,
		endpoints: endpoints,
	}
}

// ListFollowups fetches follow-up records matching the filter. A zero-value
// filter lists without conditions.
func (c *Client) ListFollowups(ctx context.Context, filter Filter, page, pageSize int) ([]gjson.Result, error) {
	payload := map[string]any{
		"pageIndex": page,
		"pageSize":  pageSize,
	}
	if filter.Field != "" {
		payload["simpleVOs"] = []any{filter.simpleVO()}
	}
	doc, err := c.request(ctx, http.MethodPost, c.endpoints.FollowupList, nil, payload)
	if err != nil {
		return nil, err
	}
	return doc.Get("data.recordList").Array(), nil
}

// ListTasks fetches task records for a customer, matched by name.
func (c *Client) ListTasks(ctx context.Context, customerKeyword string, page, pageSize int) ([]gjson.Result, error) {
	payload := map[string]any{
		"pageIndex": page,
		"pageSize":  pageSize,
	}
	if customerKeyword != "" {
		payload["simpleVOs"] = []any{Filter{Field: "customer.name", Op: "like", Value: customerKeyword}.simpleVO()}
	}
	doc, err := c.request(ctx, http.MethodPost, c.endpoints.TaskList, nil, payload)
	if err != nil {
		return nil, err
	}
	return doc.Get("data.recordList").Array(), nil
}

// ListOpportunities fetches opportunity bills matching a single filter.
func (c *Client) ListOpportunities(ctx context.Context, filter Filter, page, pageSize int) ([]gjson.Result, error) {
	if c.endpoints.OpportunityList == "" {
		return nil, nil
	}
	payload := map[string]any{
		"pageIndex": page,
		"pageSize":  pageSize,
	}
	if filter.Field != "" {
		payload["simpleVOs"] = []any{filter.simpleVO()}
	}
	doc, err := c.request(ctx, http.MethodPost, c.endpoints.OpportunityList, nil, payload)
	if err != nil {
		return nil, err
	}
	return doc.Get("data.recordList").Array(), nil
}

// GetOpportunityDetail fetches a single opportunity. Some tenants expose the
// endpoint as GET, others as POST; the GET form is tried first.
func (c *Client) GetOpportunityDetail(ctx context.Context, opportunityID string) (gjson.Result, error) {
	if c.endpoints.OpportunityDetail == "" || opportunityID == "" {
		return gjson.Result{}, nil
	}
	params := url.Values{"id": []string{opportunityID}}
	doc, err := c.request(ctx, http.MethodGet, c.endpoints.OpportunityDetail, params, nil)
	if err != nil {
		doc, err = c.request(ctx, http.MethodPost, c.endpoints.OpportunityDetail, params, map[string]any{"id": opportunityID})
		if err != nil {
			return gjson.Result{}, err
		}
	}
	if data := doc.Get("data"); data.Exists() {
		return data, nil
	}
	if result := doc.Get("result"); result.Exists() {
		return result, nil
	}
	return doc, nil
}

// GetCustomerDetail fetches the customer master record.
func (c *Client) GetCustomerDetail(ctx context.Context, customerID, orgID string) (gjson.Result, error) {
	params := url.Values{
		"id":    []string{customerID},
		"orgId": []string{orgID},
	}
	doc, err := c.request(ctx, http.MethodGet, c.endpoints.CustomerDetail, params, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	return doc.Get("data"), nil
}

// ListAddressesByCodes fetches merchant addresses for the given customer codes.
func (c *Client) ListAddressesByCodes(ctx context.Context, codes []string) ([]gjson.Result, error) {
	pageSize := len(codes)
	if pageSize < 1 {
		pageSize = 1
	}
	payload := map[string]any{
		"codeList":  codes,
		"pageIndex": 1,
		"pageSize":  pageSize,
	}
	doc, err := c.request(ctx, http.MethodPost, c.endpoints.AddressList, nil, payload)
	if err != nil {
		return nil, err
	}
	return doc.Get("data").Array(), nil
}

// request performs one gateway call. The access token always travels as a
// query parameter, never in a response to the browser.
func (c *Client) request(ctx context.Context, method, path string, params url.Values, body any) (gjson.Result, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return gjson.Result{}, err
	}

	query := url.Values{"access_token": []string{token}}
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("encoding request body for %s: %w", path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoints.GatewayURL+path+"?"+query.Encode(), reader)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("building request for %s: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return gjson.Result{}, &GatewayError{Path: path, Detail: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return gjson.Result{}, &GatewayError{Path: path, Detail: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("Gateway call failed", "path", path, "status", resp.StatusCode)
		return gjson.Result{}, &GatewayError{Path: path, Status: resp.StatusCode, Detail: truncate(string(raw), 512)}
	}

	doc := gjson.ParseBytes(raw)
	if code := doc.Get("code").String(); !acceptedCodes[code] {
		c.log.Warn("Gateway returned error envelope", "path", path, "code", code, "message", doc.Get("message").String())
		return gjson.Result{}, &GatewayError{Path: path, Detail: "unexpected response code " + code}
	}

	return doc, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
