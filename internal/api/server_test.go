package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"signalengine/config"
	"signalengine/internal/auth"
	"signalengine/internal/cache"
	"signalengine/internal/logging"
	"signalengine/internal/scanner"
)

type fakeControl struct {
	lastParams config.AnalysisDefaultConfig
	lastMode   string
}

func (f *fakeControl) UpdateParams(ctx context.Context, cfg config.AnalysisDefaultConfig) error {
	f.lastParams = cfg
	return nil
}

func (f *fakeControl) UpdateMode(ctx context.Context, mode string) error {
	f.lastMode = mode
	return nil
}

type fakeTradeHistory struct {
	trades []TradeSummary
}

func (f fakeTradeHistory) RecentTrades(ctx context.Context, limit int) ([]TradeSummary, error) {
	if limit < len(f.trades) {
		return f.trades[:limit], nil
	}
	return f.trades, nil
}

func newTestServer(t *testing.T) (*Server, *fakeControl) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	hash, err := auth.HashPassword("operator-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	control := &fakeControl{}
	sc := scanner.New(scanner.Config{CronSpec: "@every 1h"}, nil, nil, logging.Default())

	s := NewServer(Dependencies{
		JWTManager: auth.NewJWTManager("test-secret", time.Hour),
		Cache:      cache.New(cache.Config{Address: mr.Addr()}),
		Scanner:    sc,
		Control:    control,
		TradeHistory: fakeTradeHistory{trades: []TradeSummary{
			{ContractID: "c1", Symbol: "R_100", TradeType: "CALL", ProfitLoss: 4.5, Status: "won", TradeDate: "2026-08-01"},
		}},
		LoginUser: "operator",
		LoginHash: hash,
		Log:       logging.Default(),
	})
	return s, control
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, s *Server) string {
	t.Helper()
	rec := doJSON(t, s.router, http.MethodPost, "/auth/login", "", loginRequest{Username: "operator", Password: "operator-password"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.router, http.MethodPost, "/auth/login", "", loginRequest{Username: "operator", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLoginSucceedsAndProtectedRoutesRequireToken(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s.router, http.MethodGet, "/trades", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated /trades status = %d, want 401", rec.Code)
	}

	token := login(t, s)
	rec = doJSON(t, s.router, http.MethodGet, "/trades", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated /trades status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Trades []TradeSummary `json:"trades"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode trades response: %v", err)
	}
	if len(body.Trades) != 1 || body.Trades[0].ContractID != "c1" {
		t.Fatalf("trades = %+v", body.Trades)
	}
}

func TestUpdateConfigDispatchesToControlPlaneAndCachesSnapshot(t *testing.T) {
	s, control := newTestServer(t)
	token := login(t, s)

	cfg := config.AnalysisDefaultConfig{ShortMAType: "EMA", ShortMAPeriod: 5}
	rec := doJSON(t, s.router, http.MethodPost, "/config", token, cfg)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if control.lastParams != cfg {
		t.Fatalf("control.lastParams = %+v, want %+v", control.lastParams, cfg)
	}

	rec = doJSON(t, s.router, http.MethodGet, "/config", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /config status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got config.AnalysisDefaultConfig
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if got != cfg {
		t.Fatalf("cached snapshot = %+v, want %+v", got, cfg)
	}
}

func TestGetConfigReportsNotFoundBeforeAnySnapshot(t *testing.T) {
	s, _ := newTestServer(t)
	token := login(t, s)
	rec := doJSON(t, s.router, http.MethodGet, "/config", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestScannerStartStop(t *testing.T) {
	s, _ := newTestServer(t)
	token := login(t, s)

	rec := doJSON(t, s.router, http.MethodPost, "/scanner/start", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s.router, http.MethodPost, "/scanner/stop", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
