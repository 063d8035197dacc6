package fingerprint

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jgivc/harvester/internal/entity"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const storePath = "/data/checksums.yml"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestRecordAndLookup(t *testing.T) {
	fs := afero.NewMemMapFs()

	store, err := NewStoreWithFS(fs, storePath, testLogger())
	require.NoError(t, err)

	_, ok := store.Lookup("missing")
	require.False(t, ok)

	fp := entity.ContentFingerprint{
		LogicalID:  "abc",
		Hash:       "deadbeef",
		SizeBytes:  42,
		ObservedAt: time.Now(),
	}
	require.NoError(t, store.Record(fp))

	got, ok := store.Lookup("abc")
	require.True(t, ok)
	require.Equal(t, fp.Hash, got.Hash)
	require.Equal(t, fp.SizeBytes, got.SizeBytes)
}

func TestRecordOverwritesPrior(t *testing.T) {
	fs := afero.NewMemMapFs()

	store, err := NewStoreWithFS(fs, storePath, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Record(entity.ContentFingerprint{LogicalID: "abc", Hash: "old"}))
	require.NoError(t, store.Record(entity.ContentFingerprint{LogicalID: "abc", Hash: "new"}))

	got, ok := store.Lookup("abc")
	require.True(t, ok)
	require.Equal(t, "new", got.Hash)
}

func TestSurvivesReopen(t *testing.T) {
	fs := afero.NewMemMapFs()

	store, err := NewStoreWithFS(fs, storePath, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Record(entity.ContentFingerprint{LogicalID: "abc", Hash: "deadbeef", SizeBytes: 7}))
	require.NoError(t, store.Record(entity.ContentFingerprint{LogicalID: "def", Hash: "cafe", SizeBytes: 9}))

	reopened, err := NewStoreWithFS(fs, storePath, testLogger())
	require.NoError(t, err)

	got, ok := reopened.Lookup("abc")
	require.True(t, ok)
	require.Equal(t, "deadbeef", got.Hash)
	require.Equal(t, int64(7), got.SizeBytes)

	_, ok = reopened.Lookup("def")
	require.True(t, ok)
}

func TestNoTempFileLeftBehind(t *testing.T) {
	fs := afero.NewMemMapFs()

	store, err := NewStoreWithFS(fs, storePath, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Record(entity.ContentFingerprint{LogicalID: "abc", Hash: "deadbeef"}))

	exists, err := afero.Exists(fs, storePath+tmpSuffix)
	require.NoError(t, err)
	require.False(t, exists)

	exists, err = afero.Exists(fs, storePath)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestDelete(t *testing.T) {
	fs := afero.NewMemMapFs()

	store, err := NewStoreWithFS(fs, storePath, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Record(entity.ContentFingerprint{LogicalID: "abc", Hash: "deadbeef"}))
	require.NoError(t, store.Delete("abc"))
	require.NoError(t, store.Delete("abc")) // idempotent

	_, ok := store.Lookup("abc")
	require.False(t, ok)

	reopened, err := NewStoreWithFS(fs, storePath, testLogger())
	require.NoError(t, err)

	_, ok = reopened.Lookup("abc")
	require.False(t, ok)
}

func TestRecordRollsBackOnPersistError(t *testing.T) {
	fs := afero.NewMemMapFs()

	store, err := NewStoreWithFS(fs, storePath, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Record(entity.ContentFingerprint{LogicalID: "abc", Hash: "old"}))

	store.fs = afero.NewReadOnlyFs(fs)
	require.Error(t, store.Record(entity.ContentFingerprint{LogicalID: "abc", Hash: "new"}))

	got, ok := store.Lookup("abc")
	require.True(t, ok)
	require.Equal(t, "old", got.Hash)
}
