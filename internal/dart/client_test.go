package dart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(url string) *HTTPClient {
	return NewHTTPClient("test-key",
		WithBaseURL(url),
		WithRetryDelay(time.Millisecond),
		WithRateLimit(0),
	)
}

func TestHTTPClient_IssuanceStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/irdsSttus.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("crtfc_key") != "test-key" {
			t.Errorf("expected api key in query, got %q", q.Get("crtfc_key"))
		}
		if q.Get("corp_code") != "00126380" || q.Get("bsns_year") != "2022" || q.Get("reprt_code") != "11011" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}

		resp := map[string]interface{}{
			"status":  "000",
			"message": "정상",
			"list": []map[string]string{
				{
					"isu_dcrs_de":                 "2022-05-10",
					"isu_dcrs_stle":               "유상증자(주주배정)",
					"isu_dcrs_qy":                 "1,000",
					"isu_dcrs_mstvdv_fval_amount": "5,000",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	items, err := newTestClient(server.URL).IssuanceStatus(context.Background(), "00126380", 2022, "11011")
	if err != nil {
		t.Fatalf("IssuanceStatus: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].IsuDcrsStle != "유상증자(주주배정)" {
		t.Errorf("unexpected type text %q", items[0].IsuDcrsStle)
	}
	if items[0].IsuDcrsQy != "1,000" {
		t.Errorf("expected raw quantity, got %q", items[0].IsuDcrsQy)
	}
}

func TestHTTPClient_SplitResolutions_PeriodParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("bgn_de") != "20220101" || q.Get("end_de") != "20221231" {
			t.Errorf("unexpected period: %s..%s", q.Get("bgn_de"), q.Get("end_de"))
		}
		w.Write([]byte(`{"status":"000","message":"ok","list":[{"bddd":"2022-03-02","rt_vl":"5"}]}`))
	}))
	defer server.Close()

	begin := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)
	items, err := newTestClient(server.URL).SplitResolutions(context.Background(), "00126380", begin, end)
	if err != nil {
		t.Fatalf("SplitResolutions: %v", err)
	}
	if len(items) != 1 || items[0].RtVl != "5" {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestHTTPClient_NoDataIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"013","message":"조회된 데이타가 없습니다."}`))
	}))
	defer server.Close()

	items, err := newTestClient(server.URL).MergerResolutions(context.Background(), "00126380", time.Now(), time.Now())
	if err != nil {
		t.Fatalf("expected no error for no-data status, got %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected empty list, got %d", len(items))
	}
}

func TestHTTPClient_RateLimitStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"status":"020","message":"요청 제한을 초과하였습니다."}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Allotment(context.Background(), "00126380", 2022, "11011")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != StatusRateLimited {
		t.Errorf("expected APIError with status 020, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("status errors must not be retried by the client, got %d calls", calls.Load())
	}
}

func TestHTTPClient_HTTP429IsRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Allotment(context.Background(), "00126380", 2022, "11011")
	if !IsRateLimited(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestHTTPClient_OtherStatusIsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"010","message":"등록되지 않은 키입니다."}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).IssuanceStatus(context.Background(), "00126380", 2022, "11011")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != StatusInvalidKey {
		t.Errorf("expected status 010, got %s", apiErr.Status)
	}
	if IsRateLimited(err) {
		t.Error("invalid key must not be reported as rate limited")
	}
	if !IsInvalidKey(err) {
		t.Error("expected IsInvalidKey")
	}
	if IsInvalidKey(&APIError{Status: StatusSystemCheck}) || IsInvalidKey(nil) {
		t.Error("IsInvalidKey matched a different error")
	}
}

func TestHTTPClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"status":"000","message":"ok","list":[]}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).IssuanceStatus(context.Background(), "00126380", 2022, "11011")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestHTTPClient_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).IssuanceStatus(context.Background(), "00126380", 2022, "11011")
	if err == nil {
		t.Fatal("expected error for malformed body")
	}
}
