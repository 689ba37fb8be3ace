package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voiceconfirm/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newDispatcher(t *testing.T, providerURL string) *TwilioDispatcher {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewTwilioDispatcher(config.TelephonyConfig{
		AccountSID: "AC123",
		AuthToken:  "token",
		FromNumber: "+15550000001",
		BaseURL:    providerURL,
	}, "https://confirm.example.com", NewAudioStore(rdb, time.Hour))
}

func TestDispatch_AcceptedCall(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "AC123" || pass != "token" {
			t.Errorf("missing or wrong basic auth")
		}
		_ = r.ParseForm()
		gotForm = map[string]string{
			"To":             r.PostFormValue("To"),
			"From":           r.PostFormValue("From"),
			"Url":            r.PostFormValue("Url"),
			"StatusCallback": r.PostFormValue("StatusCallback"),
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA999","status":"queued"}`))
	}))
	defer srv.Close()

	d := newDispatcher(t, srv.URL)
	res, err := d.Dispatch(context.Background(), DispatchRequest{
		PhoneNumber:   "+15551234567",
		Audio:         []byte("mp3"),
		CorrelationID: "rec-1",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !res.Accepted || res.ExternalCallID != "CA999" {
		t.Fatalf("unexpected result: %+v", res)
	}

	if gotForm["To"] != "+15551234567" || gotForm["From"] != "+15550000001" {
		t.Fatalf("unexpected to/from: %+v", gotForm)
	}
	if gotForm["Url"] != "https://confirm.example.com/webhooks/twilio/twiml/rec-1" {
		t.Fatalf("unexpected twiml url: %q", gotForm["Url"])
	}
	if gotForm["StatusCallback"] != "https://confirm.example.com/webhooks/twilio/status" {
		t.Fatalf("unexpected status callback: %q", gotForm["StatusCallback"])
	}

	// Audio must be staged under the correlation id before the call is placed.
	if _, err := d.audio.Get(context.Background(), "rec-1"); err != nil {
		t.Fatalf("expected staged audio: %v", err)
	}
}

func TestDispatch_ProviderRejectionIsResultNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"invalid to number"}`))
	}))
	defer srv.Close()

	d := newDispatcher(t, srv.URL)
	res, err := d.Dispatch(context.Background(), DispatchRequest{
		PhoneNumber:   "not-a-number",
		Audio:         []byte("mp3"),
		CorrelationID: "rec-2",
	})
	if err != nil {
		t.Fatalf("rejection must not be a transport error: %v", err)
	}
	if res.Accepted || res.ExternalCallID != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Raw["http_status"] != http.StatusBadRequest {
		t.Fatalf("expected raw http_status, got %+v", res.Raw)
	}
}

func TestDispatch_TransportFailureIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	d := newDispatcher(t, srv.URL)
	if _, err := d.Dispatch(context.Background(), DispatchRequest{
		PhoneNumber:   "+15551234567",
		Audio:         []byte("mp3"),
		CorrelationID: "rec-3",
	}); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestDispatch_ValidatesInput(t *testing.T) {
	d := newDispatcher(t, "http://unused")
	if _, err := d.Dispatch(context.Background(), DispatchRequest{}); err == nil {
		t.Fatalf("expected validation error")
	}
}
