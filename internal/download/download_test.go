package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileDownloadsAndVerifiesChecksum(t *testing.T) {
	t.Parallel()

	payload := []byte("ggml model bytes")
	sum := sha256.Sum256(payload)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "models", "ggml-small.bin")
	err := File(context.Background(), Options{
		URL:            server.URL,
		Destination:    dest,
		ExpectedSHA256: hex.EncodeToString(sum[:]),
		NoProgress:     true,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, payload, data)
	require.NoFileExists(t, dest+".part")
}

func TestFileChecksumMismatch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("corrupted"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "model.bin")
	err := File(context.Background(), Options{
		URL:            server.URL,
		Destination:    dest,
		ExpectedSHA256: "deadbeef",
		Retries:        1,
		NoProgress:     true,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "checksum mismatch")
	require.NoFileExists(t, dest)
}

func TestFileRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "model.bin")
	err := File(context.Background(), Options{
		URL:         server.URL,
		Destination: dest,
		Retries:     3,
		NoProgress:  true,
	})
	require.NoError(t, err)
	require.EqualValues(t, 3, calls.Load())
}
