package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"comebackwatch/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	mutex  sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.Timeout = 2 * time.Second
	p.MaxRetries = 2
	p.BackoffBase = 100 * time.Millisecond
	p.JitterMin = 0
	p.JitterMax = 0
	p.MaxRPS = 0
	return p
}

func newTestFetcher(policy Policy, sleeper *sleepRecorder) *Fetcher {
	return NewFetcher(policy, telemetry.NewRecorder(), Options{Sleep: sleeper.sleep})
}

func TestFetchClassification(t *testing.T) {
	testCases := []struct {
		name         string
		status       int
		body         string
		header       map[string]string
		expectKind   Kind
		expectTarget error
		expectCalls  int32
	}{
		{
			name:         "not found is not retried",
			status:       http.StatusNotFound,
			expectKind:   KindNotFound,
			expectTarget: ErrNotFound,
			expectCalls:  1,
		},
		{
			name:         "forbidden is terminal",
			status:       http.StatusForbidden,
			expectKind:   KindTerminal,
			expectTarget: ErrTerminal,
			expectCalls:  1,
		},
		{
			name:         "server errors are retried until exhausted",
			status:       http.StatusBadGateway,
			expectKind:   KindTransient,
			expectTarget: ErrTransient,
			expectCalls:  3,
		},
		{
			name:         "too many requests is retried",
			status:       http.StatusTooManyRequests,
			expectKind:   KindTransient,
			expectTarget: ErrTransient,
			expectCalls:  3,
		},
		{
			name:         "challenge body wins over status",
			status:       http.StatusServiceUnavailable,
			body:         "<html><title>Just a moment...</title></html>",
			expectKind:   KindChallenge,
			expectTarget: ErrChallenge,
			expectCalls:  1,
		},
		{
			name:         "challenge header",
			status:       http.StatusForbidden,
			header:       map[string]string{"cf-mitigated": "challenge"},
			expectKind:   KindChallenge,
			expectTarget: ErrChallenge,
			expectCalls:  1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				for k, v := range tc.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer server.Close()

			fetcher := newTestFetcher(testPolicy(), &sleepRecorder{})
			_, err := fetcher.Fetch(context.Background(), server.URL)
			require.Error(t, err)
			require.ErrorIs(t, err, tc.expectTarget)

			kind, ok := KindOf(err)
			require.True(t, ok)
			require.Equal(t, tc.expectKind, kind)
			require.Equal(t, tc.expectCalls, calls.Load())
		})
	}
}

func TestFetchRetriesWithBackoff(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	sleeper := &sleepRecorder{}
	fetcher := newTestFetcher(testPolicy(), sleeper)

	body, err := fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeper.delays)
}

func TestFetchReportsAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	policy := testPolicy()
	policy.MaxRetries = 1
	fetcher := newTestFetcher(policy, &sleepRecorder{})

	_, err := fetcher.Fetch(context.Background(), server.URL)
	var ferr *Error
	require.True(t, errors.As(err, &ferr))
	require.Equal(t, 2, ferr.Attempts)
	require.Equal(t, http.StatusInternalServerError, ferr.Status)
}

func TestFetchTimeoutIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	policy := testPolicy()
	policy.Timeout = 50 * time.Millisecond
	policy.MaxRetries = 1
	fetcher := newTestFetcher(policy, &sleepRecorder{})

	_, err := fetcher.Fetch(context.Background(), server.URL)
	require.ErrorIs(t, err, ErrTransient)
}

func TestFetchCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := newTestFetcher(testPolicy(), &sleepRecorder{})
	_, err := fetcher.Fetch(ctx, server.URL)
	require.ErrorIs(t, err, context.Canceled)
	_, ok := KindOf(err)
	require.False(t, ok)
}
