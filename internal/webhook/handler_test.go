package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audience-sync/internal/domain"
)

type fakeMirror struct {
	rows      map[string]domain.SubscriberMirror
	campaigns []domain.CampaignActivity
	failAll   bool
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{rows: make(map[string]domain.SubscriberMirror)}
}

func (f *fakeMirror) key(email, listID string) string {
	return strings.ToLower(email) + "|" + listID
}

func (f *fakeMirror) Upsert(ctx context.Context, m domain.SubscriberMirror) error {
	if f.failAll {
		return errors.New("store unavailable")
	}
	f.rows[f.key(m.Email, m.ListID)] = m
	return nil
}

func (f *fakeMirror) UpdateMergeFields(ctx context.Context, email, listID string, fields map[string]string) error {
	if f.failAll {
		return errors.New("store unavailable")
	}
	k := f.key(email, listID)
	row := f.rows[k]
	row.Email, row.ListID = email, listID
	row.MergeFields = fields
	f.rows[k] = row
	return nil
}

func (f *fakeMirror) Rekey(ctx context.Context, oldEmail, newEmail, listID string) error {
	if f.failAll {
		return errors.New("store unavailable")
	}
	old := f.key(oldEmail, listID)
	row, ok := f.rows[old]
	if ok {
		delete(f.rows, old)
	}
	row.Email, row.ListID = newEmail, listID
	f.rows[f.key(newEmail, listID)] = row
	return nil
}

func (f *fakeMirror) RecordCampaignActivity(ctx context.Context, a domain.CampaignActivity) error {
	if f.failAll {
		return errors.New("store unavailable")
	}
	f.campaigns = append(f.campaigns, a)
	return nil
}

type fakeRecorder struct {
	events []domain.AnalyticsEvent
}

func (f *fakeRecorder) Record(ctx context.Context, e domain.AnalyticsEvent) error {
	f.events = append(f.events, e)
	return nil
}

const testSecret = "0123456789abcdef"

func deliver(t *testing.T, h *Handler, body string, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/mailchimp", strings.NewReader(body))
	if sign {
		req.Header.Set(SignatureHeader, Sign(testSecret, []byte(body)))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRejectsWrongMethod(t *testing.T) {
	h := NewHandler(testSecret, newFakeMirror(), &fakeRecorder{})
	req := httptest.NewRequest(http.MethodGet, "/webhooks/mailchimp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandlerRejectsBadSignature(t *testing.T) {
	mirror := newFakeMirror()
	h := NewHandler(testSecret, mirror, &fakeRecorder{})

	body := `{"type":"subscribe","data":{"email":"a@x.com","list_id":"L1"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/mailchimp", strings.NewReader(body))
	req.Header.Set(SignatureHeader, "deadbeef")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, mirror.rows, "rejected delivery must not mutate the mirror")
}

func TestHandlerAcknowledgesMalformedBody(t *testing.T) {
	mirror := newFakeMirror()
	recorder := &fakeRecorder{}
	h := NewHandler(testSecret, mirror, recorder)

	rec := deliver(t, h, `{"type":"subscribe","data":`, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, mirror.rows)
	assert.Empty(t, recorder.events)
}

func TestHandlerWeakModeSkipsVerification(t *testing.T) {
	mirror := newFakeMirror()
	h := NewHandler("", mirror, &fakeRecorder{})

	rec := deliver(t, h, `{"type":"subscribe","data":{"email":"a@x.com","list_id":"L1"}}`, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, mirror.rows, 1)
}

func TestHandlerSubscribe(t *testing.T) {
	mirror := newFakeMirror()
	recorder := &fakeRecorder{}
	h := NewHandler(testSecret, mirror, recorder)

	rec := deliver(t, h, `{"type":"subscribe","data":{"email":"a@x.com","list_id":"L1","merges":{"FNAME":"Ann"}}}`, true)
	require.Equal(t, http.StatusOK, rec.Code)

	row := mirror.rows[mirror.key("a@x.com", "L1")]
	assert.Equal(t, domain.MirrorSubscribed, row.Status)
	assert.Equal(t, "Ann", row.MergeFields["FNAME"])

	require.Len(t, recorder.events, 1)
	assert.Equal(t, "subscribe", recorder.events[0].EventType)
}

func TestHandlerUnsubscribeLastWins(t *testing.T) {
	mirror := newFakeMirror()
	h := NewHandler(testSecret, mirror, &fakeRecorder{})

	deliver(t, h, `{"type":"subscribe","data":{"email":"a@x.com","list_id":"L1"}}`, true)
	rec := deliver(t, h, `{"type":"unsubscribe","data":{"email":"a@x.com","list_id":"L1","reason":"manual"}}`, true)
	require.Equal(t, http.StatusOK, rec.Code)

	row := mirror.rows[mirror.key("a@x.com", "L1")]
	assert.Equal(t, domain.MirrorUnsubscribed, row.Status)
	assert.Equal(t, "manual", row.Reason)
}

func TestHandlerReplayIsIdempotent(t *testing.T) {
	mirror := newFakeMirror()
	h := NewHandler(testSecret, mirror, &fakeRecorder{})

	body := `{"type":"unsubscribe","data":{"email":"a@x.com","list_id":"L1","reason":"manual"}}`
	deliver(t, h, body, true)
	before := mirror.rows[mirror.key("a@x.com", "L1")]
	deliver(t, h, body, true)
	after := mirror.rows[mirror.key("a@x.com", "L1")]

	assert.Equal(t, before, after)
	assert.Len(t, mirror.rows, 1)
}

func TestHandlerUpEmailRekeys(t *testing.T) {
	mirror := newFakeMirror()
	h := NewHandler(testSecret, mirror, &fakeRecorder{})

	deliver(t, h, `{"type":"subscribe","data":{"email":"old@x.com","list_id":"L1"}}`, true)
	rec := deliver(t, h, `{"type":"upemail","data":{"old_email":"old@x.com","new_email":"new@x.com","list_id":"L1"}}`, true)
	require.Equal(t, http.StatusOK, rec.Code)

	_, oldExists := mirror.rows[mirror.key("old@x.com", "L1")]
	assert.False(t, oldExists)
	row, newExists := mirror.rows[mirror.key("new@x.com", "L1")]
	assert.True(t, newExists)
	assert.Equal(t, domain.MirrorSubscribed, row.Status)
}

func TestHandlerCampaignActivity(t *testing.T) {
	mirror := newFakeMirror()
	h := NewHandler(testSecret, mirror, &fakeRecorder{})

	rec := deliver(t, h, `{"type":"campaign","data":{"id":"c42","list_id":"L1","subject":"Hello","status":"sent"}}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, mirror.campaigns, 1)
	assert.Equal(t, "c42", mirror.campaigns[0].CampaignID)
	assert.Empty(t, mirror.rows, "campaign events are not part of the mirror")
}

func TestHandlerUnknownTypeIgnored(t *testing.T) {
	mirror := newFakeMirror()
	recorder := &fakeRecorder{}
	h := NewHandler(testSecret, mirror, recorder)

	rec := deliver(t, h, `{"type":"mystery","data":{"email":"a@x.com","list_id":"L1"}}`, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, mirror.rows)
	assert.Empty(t, recorder.events)
}

func TestHandlerStoreFailureStillAcknowledges(t *testing.T) {
	mirror := newFakeMirror()
	mirror.failAll = true
	recorder := &fakeRecorder{}
	h := NewHandler(testSecret, mirror, recorder)

	rec := deliver(t, h, `{"type":"subscribe","data":{"email":"a@x.com","list_id":"L1"}}`, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, recorder.events, "failed event must not be counted")
}
