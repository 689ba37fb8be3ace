package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voiceconfirm/internal/config"
)

const (
	dispatchMaxAttempts  = 3
	dispatchRetryBackoff = 200 * time.Millisecond
)

// TwilioDispatcher places calls via the Twilio REST API.
//
// The flow: staged audio is written to the AudioStore, then a call is created
// pointing Twilio at our public TwiML endpoint, which plays the staged audio.
// Status callbacks land on the public status webhook.
type TwilioDispatcher struct {
	accountSID    string
	authToken     string
	fromNumber    string
	baseURL       string
	publicBaseURL string

	audio  *AudioStore
	client *http.Client
}

func NewTwilioDispatcher(cfg config.TelephonyConfig, publicBaseURL string, audio *AudioStore) *TwilioDispatcher {
	return &TwilioDispatcher{
		accountSID:    cfg.AccountSID,
		authToken:     cfg.AuthToken,
		fromNumber:    cfg.FromNumber,
		baseURL:       cfg.BaseURL,
		publicBaseURL: publicBaseURL,
		audio:         audio,
		client:        &http.Client{Timeout: 30 * time.Second},
	}
}

func (d *TwilioDispatcher) Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error) {
	if d.accountSID == "" || d.authToken == "" {
		return DispatchResult{}, fmt.Errorf("telephony: twilio credentials not configured")
	}
	if req.PhoneNumber == "" || req.CorrelationID == "" || len(req.Audio) == 0 {
		return DispatchResult{}, fmt.Errorf("telephony: phone number, correlation id and audio are required")
	}

	if err := d.audio.Put(ctx, req.CorrelationID, req.Audio); err != nil {
		return DispatchResult{}, fmt.Errorf("telephony: stage audio: %w", err)
	}

	form := url.Values{}
	form.Set("To", req.PhoneNumber)
	form.Set("From", d.fromNumber)
	form.Set("Url", d.publicBaseURL+"/webhooks/twilio/twiml/"+req.CorrelationID)
	form.Set("StatusCallback", d.publicBaseURL+"/webhooks/twilio/status")
	form.Set("StatusCallbackMethod", http.MethodPost)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", d.baseURL, d.accountSID)
	encoded := form.Encode()

	// Transport failures are retried with a short backoff; an HTTP-level
	// rejection goes straight through as a result.
	var resp *http.Response
	for attempt := 1; ; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
		if err != nil {
			return DispatchResult{}, err
		}
		httpReq.SetBasicAuth(d.accountSID, d.authToken)
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err = d.client.Do(httpReq)
		if err == nil {
			break
		}
		if attempt >= dispatchMaxAttempts || ctx.Err() != nil {
			return DispatchResult{}, fmt.Errorf("telephony: twilio request failed: %w", err)
		}
		select {
		case <-time.After(time.Duration(attempt) * dispatchRetryBackoff):
		case <-ctx.Done():
			return DispatchResult{}, fmt.Errorf("telephony: twilio request failed: %w", ctx.Err())
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return DispatchResult{}, fmt.Errorf("telephony: read twilio response: %w", err)
	}

	raw := map[string]any{}
	if err := json.Unmarshal(body, &raw); err != nil {
		raw = map[string]any{"body": string(body)}
	}
	raw["http_status"] = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Provider rejected the call. This is a dispatch result, not a
		// transport failure; the attempt still reached the provider.
		return DispatchResult{Accepted: false, Raw: raw}, nil
	}

	sid, _ := raw["sid"].(string)
	if sid == "" {
		return DispatchResult{Accepted: false, Raw: raw}, nil
	}

	return DispatchResult{
		Accepted:       true,
		ExternalCallID: sid,
		Raw:            raw,
	}, nil
}
