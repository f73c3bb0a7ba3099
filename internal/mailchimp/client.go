// Package mailchimp is a typed client for the Mailchimp Marketing API v3,
// covering only the operations the sync pipeline exercises: member
// upsert, list and merge-field discovery, webhook registration, and
// batch submission.
package mailchimp

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/audience-sync/internal/config"
)

// HTTPDoer is the interface for executing HTTP requests; *http.Client
// satisfies it. Tests substitute their own.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a Mailchimp API client bound to one account key. It performs
// no retries: retry policy belongs to the caller (the processor for
// immediate dispatch, the flusher for queued dispatch).
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPDoer
}

// ResolveAPIURL derives the account-specific API host from the key's
// datacenter suffix ("xxxx-us13" -> "https://us13.api.mailchimp.com/3.0").
func ResolveAPIURL(apiKey string) (string, error) {
	idx := strings.LastIndex(apiKey, "-")
	if idx < 0 || idx == len(apiKey)-1 {
		return "", ErrInvalidKeyFormat
	}
	dc := apiKey[idx+1:]
	return fmt.Sprintf("https://%s.api.mailchimp.com/3.0", dc), nil
}

// SubscriberHash returns the member sub-resource key: the MD5 of the
// lowercased, trimmed email address. This makes member upserts
// deterministic without a prior lookup.
func SubscriberHash(email string) string {
	h := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(h[:])
}

// NewClient creates a Mailchimp client from configuration. Fails with
// ErrInvalidKeyFormat when the key carries no datacenter suffix.
func NewClient(cfg config.MailchimpConfig) (*Client, error) {
	baseURL, err := ResolveAPIURL(cfg.APIKey)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (c *Client) SetHTTPClient(client HTTPDoer) {
	c.httpClient = client
}

// SetBaseURL overrides the resolved API host (useful for testing).
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// Request performs one authenticated call and classifies its failure
// modes: transport errors as connectivity, 4xx as client, 5xx as server.
func (c *Client) Request(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	// Mailchimp uses HTTP Basic auth; the username is arbitrary.
	req.SetBasicAuth("audience-sync", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Kind: KindConnectivity, cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: KindConnectivity, cause: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, &APIError{Kind: KindServer, Status: resp.StatusCode}
	case resp.StatusCode >= 400:
		apiErr := &APIError{Kind: KindClient, Status: resp.StatusCode}
		var problem struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(respBody, &problem) == nil {
			apiErr.Title = problem.Title
			apiErr.Detail = problem.Detail
		}
		return nil, apiErr
	}

	return respBody, nil
}

// UpsertMember inserts or updates one list member, keyed by the
// subscriber hash so the call is idempotent.
func (c *Client) UpsertMember(ctx context.Context, listID string, member MemberRequest) (*Member, error) {
	path := fmt.Sprintf("/lists/%s/members/%s", listID, SubscriberHash(member.EmailAddress))

	body, err := c.Request(ctx, http.MethodPut, path, member)
	if err != nil {
		return nil, err
	}

	var m Member
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("parsing member response: %w", err)
	}
	return &m, nil
}

// GetLists enumerates the account's audiences.
func (c *Client) GetLists(ctx context.Context) ([]List, error) {
	params := url.Values{}
	params.Set("count", "100")
	params.Set("fields", "lists.id,lists.name,lists.stats.member_count")

	body, err := c.Request(ctx, http.MethodGet, "/lists?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp listsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing lists response: %w", err)
	}
	return resp.Lists, nil
}

// GetMergeFields discovers the attribute slots available on a list.
func (c *Client) GetMergeFields(ctx context.Context, listID string) ([]MergeField, error) {
	path := fmt.Sprintf("/lists/%s/merge-fields?count=100", listID)

	body, err := c.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp mergeFieldsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing merge fields response: %w", err)
	}
	return resp.MergeFields, nil
}

// CreateWebhook registers a webhook endpoint on a list and returns its id.
func (c *Client) CreateWebhook(ctx context.Context, listID string, hook WebhookRequest) (*Webhook, error) {
	path := fmt.Sprintf("/lists/%s/webhooks", listID)

	body, err := c.Request(ctx, http.MethodPost, path, hook)
	if err != nil {
		return nil, err
	}

	var w Webhook
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("parsing webhook response: %w", err)
	}
	return &w, nil
}

// DeleteWebhook removes a registered webhook endpoint.
func (c *Client) DeleteWebhook(ctx context.Context, listID, webhookID string) error {
	path := fmt.Sprintf("/lists/%s/webhooks/%s", listID, webhookID)
	_, err := c.Request(ctx, http.MethodDelete, path, nil)
	return err
}

// SubmitBatch submits a list of operations to the asynchronous batch
// endpoint and returns the acceptance handle. Per-item outcomes are not
// available here; they surface later as webhook events.
func (c *Client) SubmitBatch(ctx context.Context, operations []Operation) (*BatchHandle, error) {
	payload := map[string][]Operation{"operations": operations}

	body, err := c.Request(ctx, http.MethodPost, "/batches", payload)
	if err != nil {
		return nil, err
	}

	var h BatchHandle
	if err := json.Unmarshal(body, &h); err != nil {
		return nil, fmt.Errorf("parsing batch response: %w", err)
	}
	return &h, nil
}

// UpsertOperation builds the batch operation equivalent of UpsertMember.
func UpsertOperation(listID string, member MemberRequest) (Operation, error) {
	body, err := json.Marshal(member)
	if err != nil {
		return Operation{}, fmt.Errorf("marshaling operation body: %w", err)
	}
	return Operation{
		Method: http.MethodPut,
		Path:   fmt.Sprintf("/lists/%s/members/%s", listID, SubscriberHash(member.EmailAddress)),
		Body:   string(body),
	}, nil
}
