package eodhd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/etnz/valuation"
	"github.com/shopspring/decimal"
)

type assets map[string]valuation.Asset

func (a assets) GetAsset(_ context.Context, id string) (valuation.Asset, error) {
	asset, ok := a[id]
	if !ok {
		return valuation.Asset{}, valuation.ErrNotFound
	}
	return asset, nil
}

var testAssets = assets{
	"aapl": {ID: "aapl", Symbol: "AAPL.US", Currency: "USD"},
	"vod":  {ID: "vod", Symbol: "VOD.LSE", Currency: "GBP"},
	"gone": {ID: "gone", Symbol: "GONE.US", Currency: "USD"},
}

func newTestServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/real-time/AAPL.US", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if r.URL.Query().Get("api_token") != "key" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.Write([]byte(`{"code":"AAPL.US","timestamp":1751385600,"open":210,"close":212.5}`))
	})
	mux.HandleFunc("/real-time/VOD.LSE", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"VOD.LSE","timestamp":1751385600,"close":72.4}`))
	})
	mux.HandleFunc("/real-time/GONE.US", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"GONE.US","timestamp":"NA","close":"NA"}`))
	})
	mux.HandleFunc("/real-time/USDEUR.FOREX", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"USDEUR.FOREX","timestamp":1751385600,"close":0.85}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_LatestPrice(t *testing.T) {
	var calls int32
	srv := newTestServer(t, &calls)
	c := NewClient("key", testAssets, WithBaseURL(srv.URL), WithRateLimit(100))
	ctx := context.Background()

	q, err := c.LatestPrice(ctx, "aapl")
	if err != nil {
		t.Fatalf("LatestPrice(aapl) error = %v", err)
	}
	if q == nil || !q.Price.Equal(valuation.M(212.5, "USD")) {
		t.Errorf("LatestPrice(aapl) = %v, want 212.5 USD", q)
	}
	if want := time.Unix(1751385600, 0).UTC(); q != nil && !q.FetchedAt.Equal(want) {
		t.Errorf("FetchedAt = %v, want %v", q.FetchedAt, want)
	}

	q, err = c.LatestPrice(ctx, "vod")
	if err != nil {
		t.Fatalf("LatestPrice(vod) error = %v", err)
	}
	if q == nil || q.Price.Currency() != "GBX" {
		t.Fatalf("LatestPrice(vod) = %v, want a GBX quote", q)
	}
	if got := valuation.NormalizePrice(q.Price); !got.Equal(valuation.MustParseMoney("0.724", "GBP")) {
		t.Errorf("NormalizePrice() = %v, want 0.724 GBP", got.Decimal())
	}

	for _, id := range []string{"gone", "unknown"} {
		q, err = c.LatestPrice(ctx, id)
		if err != nil || q != nil {
			t.Errorf("LatestPrice(%s) = %v, %v, want no quote and no error", id, q, err)
		}
	}
}

func TestClient_Errors(t *testing.T) {
	var calls int32
	srv := newTestServer(t, &calls)
	c := NewClient("wrong", testAssets, WithBaseURL(srv.URL))

	_, err := c.LatestPrice(context.Background(), "aapl")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("LatestPrice() error = %v, want a 403 APIError", err)
	}

	if _, err := c.Rate(context.Background(), "JPY", "EUR"); err == nil {
		t.Errorf("Rate(JPY, EUR) error = nil, want an error for an unknown ticker")
	}
}

func TestClient_Rate(t *testing.T) {
	var calls int32
	srv := newTestServer(t, &calls)
	c := NewClient("key", testAssets, WithBaseURL(srv.URL))

	r, err := c.Rate(context.Background(), "USD", "EUR")
	if err != nil {
		t.Fatalf("Rate() error = %v", err)
	}
	if r == nil || !r.Equal(decimal.RequireFromString("0.85")) {
		t.Errorf("Rate() = %v, want 0.85", r)
	}
}

func TestClient_DiskCache(t *testing.T) {
	var calls int32
	srv := newTestServer(t, &calls)
	c := NewClient("key", testAssets, WithBaseURL(srv.URL), WithDiskCache(t.TempDir(), time.Hour))

	for range 3 {
		q, err := c.LatestPrice(context.Background(), "aapl")
		if err != nil {
			t.Fatalf("LatestPrice() error = %v", err)
		}
		if q == nil || !q.Price.Equal(valuation.M(212.5, "USD")) {
			t.Fatalf("LatestPrice() = %v, want 212.5 USD", q)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server called %d times, want 1", got)
	}
}
