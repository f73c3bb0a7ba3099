package mailchimp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ignite/audience-sync/internal/config"
)

func TestResolveAPIURL(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		want    string
		wantErr bool
	}{
		{name: "us13 key", apiKey: "abc123def456-us13", want: "https://us13.api.mailchimp.com/3.0"},
		{name: "us2 key", apiKey: "0123456789abcdef-us2", want: "https://us2.api.mailchimp.com/3.0"},
		{name: "no suffix", apiKey: "abc123def456", wantErr: true},
		{name: "trailing dash", apiKey: "abc123def456-", wantErr: true},
		{name: "empty", apiKey: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveAPIURL(tt.apiKey)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidKeyFormat) {
					t.Errorf("ResolveAPIURL() error = %v, want ErrInvalidKeyFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveAPIURL() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveAPIURL() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSubscriberHash(t *testing.T) {
	// Hash must be case-insensitive and whitespace-insensitive so the
	// member path is deterministic.
	h1 := SubscriberHash("Ann@Example.COM")
	h2 := SubscriberHash("  ann@example.com ")
	if h1 != h2 {
		t.Errorf("SubscriberHash not normalized: %s != %s", h1, h2)
	}
	// Known MD5 of "ann@example.com"
	if len(h1) != 32 {
		t.Errorf("SubscriberHash length = %d, want 32", len(h1))
	}
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client, err := NewClient(config.MailchimpConfig{APIKey: "testkey-us13", TimeoutSeconds: 5})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	client.SetBaseURL(serverURL)
	return client
}

func TestUpsertMember(t *testing.T) {
	var gotPath, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method

		user, pass, ok := r.BasicAuth()
		if !ok || pass != "testkey-us13" {
			t.Errorf("missing or wrong basic auth: %s/%s", user, pass)
		}

		var req MemberRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(Member{
			ID:           SubscriberHash(req.EmailAddress),
			EmailAddress: req.EmailAddress,
			Status:       "subscribed",
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	member, err := client.UpsertMember(context.Background(), "L1", MemberRequest{
		EmailAddress: "a@x.com",
		StatusIfNew:  StatusSubscribed,
		MergeFields:  map[string]string{"FNAME": "Ann"},
	})
	if err != nil {
		t.Fatalf("UpsertMember() error: %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	wantPath := "/lists/L1/members/" + SubscriberHash("a@x.com")
	if gotPath != wantPath {
		t.Errorf("path = %s, want %s", gotPath, wantPath)
	}
	if member.Status != "subscribed" {
		t.Errorf("status = %s, want subscribed", member.Status)
	}
}

func TestRequestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   ErrorKind
		wantDetail string
	}{
		{
			name:       "client error with problem body",
			status:     http.StatusBadRequest,
			body:       `{"title":"Invalid Resource","detail":"merge fields were invalid"}`,
			wantKind:   KindClient,
			wantDetail: "merge fields were invalid",
		},
		{name: "server error", status: http.StatusBadGateway, body: "bad gateway", wantKind: KindServer},
		{name: "not found", status: http.StatusNotFound, body: `{"title":"Resource Not Found"}`, wantKind: KindClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)
			_, err := client.Request(context.Background(), http.MethodGet, "/lists", nil)

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error %v is not *APIError", err)
			}
			if apiErr.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", apiErr.Kind, tt.wantKind)
			}
			if tt.wantDetail != "" && apiErr.Detail != tt.wantDetail {
				t.Errorf("Detail = %q, want %q", apiErr.Detail, tt.wantDetail)
			}
		})
	}
}

func TestRequestConnectivityError(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1") // nothing listens here

	_, err := client.Request(context.Background(), http.MethodGet, "/lists", nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %v is not *APIError", err)
	}
	if apiErr.Kind != KindConnectivity {
		t.Errorf("Kind = %s, want connectivity", apiErr.Kind)
	}
	if !apiErr.Retryable() {
		t.Error("connectivity errors must be retryable")
	}
}

func TestIsMemberExists(t *testing.T) {
	existsErr := &APIError{Kind: KindClient, Status: 400, Title: "Member Exists"}
	if !IsMemberExists(existsErr) {
		t.Error("IsMemberExists() = false for Member Exists error")
	}
	if IsMemberExists(&APIError{Kind: KindClient, Status: 400, Title: "Invalid Resource"}) {
		t.Error("IsMemberExists() = true for unrelated client error")
	}
	if IsMemberExists(errors.New("boom")) {
		t.Error("IsMemberExists() = true for non-API error")
	}
}

func TestSubmitBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/batches" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var payload struct {
			Operations []Operation `json:"operations"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		if len(payload.Operations) != 2 {
			t.Errorf("got %d operations, want 2", len(payload.Operations))
		}
		json.NewEncoder(w).Encode(BatchHandle{ID: "batch-1", Status: "pending"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	op1, _ := UpsertOperation("L1", MemberRequest{EmailAddress: "a@x.com"})
	op2, _ := UpsertOperation("L1", MemberRequest{EmailAddress: "b@x.com"})

	handle, err := client.SubmitBatch(context.Background(), []Operation{op1, op2})
	if err != nil {
		t.Fatalf("SubmitBatch() error: %v", err)
	}
	if handle.ID != "batch-1" {
		t.Errorf("handle.ID = %s, want batch-1", handle.ID)
	}
}

func TestGetMergeFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(mergeFieldsResponse{MergeFields: []MergeField{
			{Tag: "FNAME", Name: "First Name", Type: "text"},
			{Tag: "PHONE", Name: "Phone", Type: "phone"},
		}})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	fields, err := client.GetMergeFields(context.Background(), "L1")
	if err != nil {
		t.Fatalf("GetMergeFields() error: %v", err)
	}
	if len(fields) != 2 || fields[0].Tag != "FNAME" {
		t.Errorf("unexpected merge fields: %+v", fields)
	}
}
