package httpadapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jgivc/harvester/internal/entity"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const tmpPath = "/tmp/file.csv.part"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestFetchSuccess(t *testing.T) {
	content := []byte("employer,fiscal_year,receipts\nacme,2024,17\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	adapter := NewAdapterWithFS(fs, 5*time.Second, testLogger())

	res, err := adapter.Fetch(context.Background(), srv.URL, tmpPath)
	require.NoError(t, err)

	sum := sha256.Sum256(content)
	require.Equal(t, hex.EncodeToString(sum[:]), res.Hash)
	require.Equal(t, int64(len(content)), res.SizeBytes)

	data, err := afero.ReadFile(fs, tmpPath)
	require.NoError(t, err)
	require.Equal(t, content, data)
}

func TestFetchErrorKinds(t *testing.T) {
	testCases := []struct {
		name         string
		handler      http.HandlerFunc
		expectedKind entity.ErrorKind
	}{
		{
			name: "server error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			expectedKind: entity.ErrKindHTTPError,
		},
		{
			name: "not found status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "gone", http.StatusNotFound)
			},
			expectedKind: entity.ErrKindHTTPError,
		},
		{
			name: "truncated transfer",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Length", "1000")
				w.Write([]byte("short"))
			},
			expectedKind: entity.ErrKindTruncatedTransfer,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			fs := afero.NewMemMapFs()
			adapter := NewAdapterWithFS(fs, 5*time.Second, testLogger())

			_, err := adapter.Fetch(context.Background(), srv.URL, tmpPath)
			require.Error(t, err)

			var ferr *entity.FetchError
			require.True(t, errors.As(err, &ferr))
			require.Equal(t, tc.expectedKind, ferr.Kind)

			// No partial temp file may survive a failed attempt.
			exists, err := afero.Exists(fs, tmpPath)
			require.NoError(t, err)
			require.False(t, exists)
		})
	}
}

func TestFetchStatusCarried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	adapter := NewAdapterWithFS(afero.NewMemMapFs(), 5*time.Second, testLogger())

	_, err := adapter.Fetch(context.Background(), srv.URL, tmpPath)

	var ferr *entity.FetchError
	require.True(t, errors.As(err, &ferr))
	require.Equal(t, http.StatusServiceUnavailable, ferr.Status)
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	adapter := NewAdapterWithFS(fs, 5*time.Second, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := adapter.Fetch(ctx, srv.URL, tmpPath)
	require.Error(t, err)

	var ferr *entity.FetchError
	require.True(t, errors.As(err, &ferr))
	require.Equal(t, entity.ErrKindTimeout, ferr.Kind)
}

func TestFetchConnectionRefused(t *testing.T) {
	adapter := NewAdapterWithFS(afero.NewMemMapFs(), time.Second, testLogger())

	_, err := adapter.Fetch(context.Background(), "http://127.0.0.1:1/file.csv", tmpPath)
	require.Error(t, err)

	var ferr *entity.FetchError
	require.True(t, errors.As(err, &ferr))
	require.Equal(t, entity.ErrKindNetworkUnreachable, ferr.Kind)
}
