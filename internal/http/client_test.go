package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func TestClient_Send_RangeHonored(t *testing.T) {
	content := []byte("0123456789abcdef")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			w.Write(content)
			return
		}

		var offset int64
		fmt.Sscanf(rangeHeader, "bytes=%d-", &offset)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, len(content)-1, len(content)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(content[offset:])
	}))
	defer server.Close()

	client := NewClient("", nil)

	resp, err := client.Send(context.Background(), http.MethodGet, server.URL, 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if !resp.RangeHonored {
		t.Error("expected range to be honored")
	}
	if resp.TotalSize != int64(len(content)) {
		t.Errorf("total size = %d, want %d", resp.TotalSize, len(content))
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "6789abcdef" {
		t.Errorf("body = %q, want suffix from offset 6", body)
	}
}

func TestClient_Send_RangeIgnored(t *testing.T) {
	content := []byte("full content from zero")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Ignore the Range header entirely.
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.WriteHeader(http.StatusOK)
		w.Write(content)
	}))
	defer server.Close()

	client := NewClient("", nil)

	resp, err := client.Send(context.Background(), http.MethodGet, server.URL, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.RangeHonored {
		t.Error("200 response must report range not honored")
	}
	if resp.TotalSize != int64(len(content)) {
		t.Errorf("total size = %d, want %d", resp.TotalSize, len(content))
	}
}

func TestClient_Send_NonSuccessStatusIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient("", nil)

	resp, err := client.Send(context.Background(), http.MethodGet, server.URL, 0)
	if err != nil {
		t.Fatalf("status codes must be returned as results, got error: %v", err)
	}
	resp.Body.Close()

	if resp.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.Status)
	}
}

func TestClient_IdentityHeaders(t *testing.T) {
	var gotCookie, gotReferer, gotUA string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotReferer = r.Header.Get("Referer")
		gotUA = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	client := NewClient("secret-session", nil)
	if _, err := client.Get(context.Background(), server.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotCookie != "SESSDATA=secret-session" {
		t.Errorf("cookie = %q, want SESSDATA credential", gotCookie)
	}
	if gotReferer == "" {
		t.Error("referer header missing")
	}
	if !strings.Contains(gotUA, "Mozilla") {
		t.Errorf("user-agent = %q, want browser-like value", gotUA)
	}
}

func TestClient_Tier(t *testing.T) {
	if NewClient("", nil).Tier().String() != "anonymous" {
		t.Error("empty credential should yield anonymous tier")
	}
	if NewClient("tok", nil).Tier().String() != "elevated" {
		t.Error("credential should yield elevated tier")
	}
}

func TestClient_Get_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient("", nil)
	_, err := client.Get(context.Background(), server.URL)

	statusErr, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("expected *StatusError, got %T", err)
	}
	if statusErr.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", statusErr.Status)
	}
}

func TestParseContentRangeTotal(t *testing.T) {
	tests := []struct {
		header string
		want   int64
	}{
		{"bytes 0-1023/4096", 4096},
		{"bytes 512-1023/*", -1},
		{"", -1},
		{"garbage", -1},
	}

	for _, tt := range tests {
		if got := parseContentRangeTotal(tt.header); got != tt.want {
			t.Errorf("parseContentRangeTotal(%q) = %d, want %d", tt.header, got, tt.want)
		}
	}
}
