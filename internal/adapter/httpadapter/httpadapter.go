package httpadapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jgivc/harvester/internal/entity"
	"github.com/spf13/afero"
)

const (
	copyBufferSize      = 32 * 1024
	maxIdleConnsPerHost = 10
	idleConnTimeout     = 90 * time.Second
)

// Result describes one fully received transfer sitting at the temp path.
type Result struct {
	Hash      string // hex encoded sha256 of the received bytes
	SizeBytes int64
}

// httpAdapter performs a single download attempt: GET the URL, stream the
// body into a temp file, hashing as it goes. Retry policy lives in the fetch
// service, not here.
type httpAdapter struct {
	fs     afero.Fs
	client *http.Client
	log    *slog.Logger
}

func NewAdapter(timeout time.Duration, log *slog.Logger) *httpAdapter {
	return NewAdapterWithFS(afero.NewOsFs(), timeout, log)
}

func NewAdapterWithFS(fs afero.Fs, timeout time.Duration, log *slog.Logger) *httpAdapter {
	transport := &http.Transport{
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
	}

	return &httpAdapter{
		fs: fs,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		log: log.With(slog.String("item", "HTTPAdapter")),
	}
}

// Fetch downloads url into tmpPath. On any error the temp file is removed
// and a classified *entity.FetchError is returned. On success the caller
// owns the temp file.
func (a *httpAdapter) Fetch(ctx context.Context, url, tmpPath string) (*Result, error) {
	res, err := a.fetch(ctx, url, tmpPath)
	if err != nil {
		a.fs.Remove(tmpPath)

		return nil, err
	}

	return res, nil
}

func (a *httpAdapter) fetch(ctx context.Context, url, tmpPath string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &entity.FetchError{Kind: entity.ErrKindNetworkUnreachable, Err: err}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &entity.FetchError{
			Kind:   entity.ErrKindHTTPError,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status: %s", resp.Status),
		}
	}

	file, err := a.fs.Create(tmpPath)
	if err != nil {
		return nil, &entity.FetchError{Kind: entity.ErrKindStorageWrite, Err: err}
	}

	hasher := sha256.New()
	written, err := copyStream(file, resp.Body, hasher)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = &entity.FetchError{Kind: entity.ErrKindStorageWrite, Err: cerr}
	}
	if err != nil {
		return nil, err
	}

	if resp.ContentLength >= 0 && written != resp.ContentLength {
		return nil, &entity.FetchError{
			Kind: entity.ErrKindTruncatedTransfer,
			Err:  fmt.Errorf("received %d of %d bytes", written, resp.ContentLength),
		}
	}

	return &Result{
		Hash:      hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes: written,
	}, nil
}

// copyStream copies src into dst and hasher, keeping read failures (network)
// distinguishable from write failures (disk).
func copyStream(dst io.Writer, src io.Reader, hasher io.Writer) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var written int64

	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])

			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, &entity.FetchError{Kind: entity.ErrKindStorageWrite, Err: werr}
			}

			written += int64(n)
		}

		if rerr != nil {
			if rerr == io.EOF {
				return written, nil
			}

			return written, classifyTransportError(rerr)
		}
	}
}

func classifyTransportError(err error) *entity.FetchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &entity.FetchError{Kind: entity.ErrKindTimeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &entity.FetchError{Kind: entity.ErrKindTimeout, Err: err}
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return &entity.FetchError{Kind: entity.ErrKindTruncatedTransfer, Err: err}
	}

	return &entity.FetchError{Kind: entity.ErrKindNetworkUnreachable, Err: err}
}
