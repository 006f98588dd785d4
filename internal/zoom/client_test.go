package zoom

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoom_connector/internal/backoff"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testPolicy(maxRetries int) backoff.Policy {
	return &backoff.ExponentialPolicy{
		InitialInterval: time.Millisecond,
		Factor:          2.0,
		MaxInterval:     10 * time.Millisecond,
		MaxRetries:      maxRetries,
	}
}

func newTestClient(baseURL string, maxRetries int) *Client {
	return New(Config{
		APIKey:    "test-key",
		APISecret: "test-secret",
		BaseURL:   baseURL,
		PageSize:  300,
		Timeout:   5 * time.Second,
	}, testPolicy(maxRetries), testLogger())
}

func writePage(t *testing.T, w http.ResponseWriter, page RawPage) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(page))
}

func TestPager_TerminatesWhenTokenAbsent(t *testing.T) {
	var requests int
	var tokens []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		tokens = append(tokens, r.URL.Query().Get("next_page_token"))

		if requests == 1 {
			writePage(t, w, RawPage{
				NextPageToken: "token-2",
				Participants:  []Participant{{ID: "p1"}, {ID: "p2"}},
			})
			return
		}
		writePage(t, w, RawPage{
			Participants: []Participant{{ID: "p3"}},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)
	pager, err := client.FetchPages(ReportMeetings, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)

	ctx := context.Background()

	page1, err := pager.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, page1)
	assert.Len(t, page1.Participants, 2)

	page2, err := pager.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, page2)
	assert.Len(t, page2.Participants, 1)

	page3, err := pager.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, page3)

	assert.Equal(t, 2, requests)
	assert.Equal(t, []string{"", "token-2"}, tokens)
}

func TestPager_AttachesBearerToken(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		writePage(t, w, RawPage{})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)
	pager, err := client.FetchPages(ReportWebinars, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)

	_, err = pager.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(auth, "Bearer "))
	assert.Greater(t, len(auth), len("Bearer "))
}

func TestClient_RetriesRateLimitThenSucceeds(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writePage(t, w, RawPage{Participants: []Participant{{ID: "p1"}}})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)
	pager, err := client.FetchPages(ReportMeetings, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)

	page, err := pager.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, 2, requests)
}

func TestClient_HonorsRetryAfterOverBackoff(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writePage(t, w, RawPage{Participants: []Participant{{ID: "p1"}}})
	}))
	defer server.Close()

	// The policy backoff is 1ms, so any suspend near a full second can only
	// come from the Retry-After header.
	client := newTestClient(server.URL, 3)
	pager, err := client.FetchPages(ReportMeetings, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)

	start := time.Now()
	page, err := pager.Next(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, 2, requests)
	assert.GreaterOrEqual(t, elapsed, time.Second)
}

func TestClient_CancellationAbortsRetryWait(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)
	pager, err := client.FetchPages(ReportMeetings, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = pager.Next(ctx)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, time.Second)
}

func TestClient_FailsFastOnClientError(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":124,"message":"invalid access token"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)
	pager, err := client.FetchPages(ReportMeetings, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)

	_, err = pager.Next(context.Background())
	require.Error(t, err)

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, http.StatusUnauthorized, fatal.StatusCode)
	assert.Equal(t, 1, requests)
}

func TestClient_ExhaustsRetriesOnServerError(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 2)
	pager, err := client.FetchPages(ReportMeetings, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)

	_, err = pager.Next(context.Background())
	require.Error(t, err)

	var transient *TransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, 3, requests) // initial attempt plus two retries
}

func TestClient_UnknownReportType(t *testing.T) {
	client := newTestClient("http://localhost", 1)
	_, err := client.FetchPages("chats", time.Now().Add(-time.Hour), time.Now())
	assert.Error(t, err)
}
