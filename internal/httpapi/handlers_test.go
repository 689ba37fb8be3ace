package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voiceconfirm/internal/auth"
	"voiceconfirm/internal/calls"
	"voiceconfirm/internal/config"
	"voiceconfirm/internal/orders"
	"voiceconfirm/internal/rbac"
	"voiceconfirm/internal/telephony"
	"voiceconfirm/internal/voice"

	"github.com/gin-gonic/gin"
)

type stubVoice struct{ err error }

func (s stubVoice) GenerateScriptAndAudio(ctx context.Context, req voice.ScriptRequest, voiceID string) (voice.Script, error) {
	if s.err != nil {
		return voice.Script{}, s.err
	}
	return voice.Script{Text: "hello " + req.CustomerName, Audio: []byte("mp3")}, nil
}

type stubDialer struct{}

func (stubDialer) Dispatch(ctx context.Context, req telephony.DispatchRequest) (telephony.DispatchResult, error) {
	return telephony.DispatchResult{Accepted: true, ExternalCallID: "CA1", Raw: map[string]any{"status": "queued"}}, nil
}

type apiFixture struct {
	router     *gin.Engine
	manager    *auth.Manager
	orderStore *orders.MemoryStore
	store      *calls.MemoryStore
}

func newAPIFixture(t *testing.T, vp voice.Provider) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	f := &apiFixture{
		manager:    manager,
		orderStore: orders.NewMemoryStore(),
		store:      calls.NewMemoryStore(),
	}
	f.orderStore.Seed(orders.Order{
		ID:              "order-1",
		UserID:          "user-1",
		ExternalOrderID: "ORD-1001",
		Customer:        orders.Customer{Name: "Ada", Phone: "+15551234567"},
		Details: orders.OrderDetails{
			Items:      []orders.OrderItem{{Name: "Keyboard", Quantity: 1, PriceMinor: 4999}},
			TotalMinor: 4999,
			Currency:   "USD",
		},
		ConfirmationStatus: orders.ConfirmationPending,
		MaxCallAttempts:    3,
	})

	orch := calls.NewOrchestrator(f.orderStore, f.store, vp, stubDialer{}, calls.NewMemoryLocker(), calls.OrchestratorConfig{
		DefaultVoiceID:  "voice-default",
		ProviderTimeout: time.Second,
	})
	h := Handlers{
		Auth:         manager,
		Orchestrator: orch,
		Reader:       calls.NewReader(f.store),
	}

	r := gin.New()
	r.POST("/v1/auth/login", h.Login)
	r.POST("/v1/auth/refresh", h.Refresh)

	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(manager))
	v1.Use(rbac.RequireAnyRole(rbac.RoleMerchant, rbac.RoleAdmin))
	{
		v1.POST("/orders/:order_id/calls", h.InitiateCall)
		v1.GET("/calls", h.ListCalls)
		v1.GET("/calls/stats", h.CallStats)
		v1.GET("/calls/languages", h.SupportedLanguages)
		v1.GET("/calls/:call_id", h.GetCall)
	}
	f.router = r
	return f
}

func (f *apiFixture) token(t *testing.T, userID, role string) string {
	t.Helper()
	pair, err := f.manager.IssuePair(time.Now(), userID, role)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	return pair.AccessToken
}

func (f *apiFixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestInitiateCall_Created(t *testing.T) {
	f := newAPIFixture(t, stubVoice{})
	token := f.token(t, "user-1", rbac.RoleMerchant)

	w := f.do(t, http.MethodPost, "/v1/orders/order-1/calls", token, `{"language":"es"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var rec calls.CallRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Status != calls.StatusInProgress || rec.Language != "es" || rec.ExternalCallID != "CA1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestInitiateCall_RequiresAuth(t *testing.T) {
	f := newAPIFixture(t, stubVoice{})
	if w := f.do(t, http.MethodPost, "/v1/orders/order-1/calls", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestInitiateCall_ErrorMapping(t *testing.T) {
	t.Run("unknown order is 404", func(t *testing.T) {
		f := newAPIFixture(t, stubVoice{})
		w := f.do(t, http.MethodPost, "/v1/orders/nope/calls", f.token(t, "user-1", rbac.RoleMerchant), "")
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
	})

	t.Run("foreign order is 404", func(t *testing.T) {
		f := newAPIFixture(t, stubVoice{})
		w := f.do(t, http.MethodPost, "/v1/orders/order-1/calls", f.token(t, "user-2", rbac.RoleMerchant), "")
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
	})

	t.Run("confirmed order is 400", func(t *testing.T) {
		f := newAPIFixture(t, stubVoice{})
		o, _ := f.orderStore.Get("order-1")
		o.ConfirmationStatus = orders.ConfirmationConfirmed
		f.orderStore.Seed(o)
		w := f.do(t, http.MethodPost, "/v1/orders/order-1/calls", f.token(t, "user-1", rbac.RoleMerchant), "")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("exhausted budget is 400", func(t *testing.T) {
		f := newAPIFixture(t, stubVoice{})
		o, _ := f.orderStore.Get("order-1")
		o.CallAttempts = o.MaxCallAttempts
		f.orderStore.Seed(o)
		w := f.do(t, http.MethodPost, "/v1/orders/order-1/calls", f.token(t, "user-1", rbac.RoleMerchant), "")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("live call is 409", func(t *testing.T) {
		f := newAPIFixture(t, stubVoice{})
		_ = f.store.Insert(context.Background(), calls.CallRecord{ID: "live", OrderID: "order-1", UserID: "user-1", Status: calls.StatusInProgress, CreatedAt: time.Now(), UpdatedAt: time.Now()})
		w := f.do(t, http.MethodPost, "/v1/orders/order-1/calls", f.token(t, "user-1", rbac.RoleMerchant), "")
		if w.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", w.Code)
		}
	})

	t.Run("synthesis failure is 502", func(t *testing.T) {
		f := newAPIFixture(t, stubVoice{err: context.DeadlineExceeded})
		w := f.do(t, http.MethodPost, "/v1/orders/order-1/calls", f.token(t, "user-1", rbac.RoleMerchant), "")
		if w.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", w.Code)
		}
	})
}

func TestGetCall_Scoping(t *testing.T) {
	f := newAPIFixture(t, stubVoice{})
	_ = f.store.Insert(context.Background(), calls.CallRecord{ID: "c1", OrderID: "order-1", UserID: "user-1", Status: calls.StatusCompleted, CreatedAt: time.Now(), UpdatedAt: time.Now()})

	if w := f.do(t, http.MethodGet, "/v1/calls/c1", f.token(t, "user-1", rbac.RoleMerchant), ""); w.Code != http.StatusOK {
		t.Fatalf("owner read: %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/v1/calls/c1", f.token(t, "user-2", rbac.RoleMerchant), ""); w.Code != http.StatusNotFound {
		t.Fatalf("non-owner must get 404, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/v1/calls/c1", f.token(t, "admin-1", rbac.RoleAdmin), ""); w.Code != http.StatusOK {
		t.Fatalf("admin read: %d", w.Code)
	}
}

func TestListCalls_FilterValidation(t *testing.T) {
	f := newAPIFixture(t, stubVoice{})
	token := f.token(t, "user-1", rbac.RoleMerchant)

	if w := f.do(t, http.MethodGet, "/v1/calls?status=bogus", token, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/v1/calls?from=notatime", token, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad from, got %d", w.Code)
	}

	w := f.do(t, http.MethodGet, "/v1/calls?status=completed&limit=10", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Calls []calls.CallRecord `json:"calls"`
		Count int                `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != len(resp.Calls) {
		t.Fatalf("count mismatch: %+v", resp)
	}
}

func TestCallStats(t *testing.T) {
	f := newAPIFixture(t, stubVoice{})
	now := time.Now()
	_ = f.store.Insert(context.Background(), calls.CallRecord{ID: "c1", UserID: "user-1", Status: calls.StatusCompleted, Outcome: calls.OutcomeCompleted, DurationSeconds: 20, CreatedAt: now, UpdatedAt: now})
	_ = f.store.Insert(context.Background(), calls.CallRecord{ID: "c2", UserID: "user-1", Status: calls.StatusFailed, Outcome: calls.OutcomeFailed, CreatedAt: now, UpdatedAt: now})

	w := f.do(t, http.MethodGet, "/v1/calls/stats", f.token(t, "user-1", rbac.RoleMerchant), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stats calls.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalCalls != 2 || stats.SuccessfulCalls != 1 || stats.SuccessRate != 50 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSupportedLanguages(t *testing.T) {
	f := newAPIFixture(t, stubVoice{})
	w := f.do(t, http.MethodGet, "/v1/calls/languages", f.token(t, "user-1", rbac.RoleMerchant), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Languages []string `json:"languages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, l := range resp.Languages {
		if l == "en" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected en in languages: %v", resp.Languages)
	}
}

func TestLoginAndRefresh(t *testing.T) {
	f := newAPIFixture(t, stubVoice{})

	w := f.do(t, http.MethodPost, "/v1/auth/login", "", `{"user_id":"user-1","role":"merchant"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	var pair struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected token pair")
	}

	w = f.do(t, http.MethodPost, "/v1/auth/refresh", "", `{"refresh_token":"`+pair.RefreshToken+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", w.Code, w.Body.String())
	}

	// An access token is not a refresh token.
	w = f.do(t, http.MethodPost, "/v1/auth/refresh", "", `{"refresh_token":"`+pair.AccessToken+`"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for access token, got %d", w.Code)
	}

	if w := f.do(t, http.MethodPost, "/v1/auth/login", "", `{"user_id":""}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
