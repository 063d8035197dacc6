package ledger

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jgivc/harvester/internal/entity"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const ledgerPath = "/data/metadata.yml"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func testEntry(id string) entity.LedgerEntry {
	return entity.LedgerEntry{
		LogicalID:       id,
		Filename:        id + ".csv",
		DestinationPath: "/data/h1b/" + id + ".csv",
		SizeBytes:       100,
		DownloadedAt:    time.Now(),
		Category:        entity.CategoryH1B,
	}
}

func TestUpsertReplacesByLogicalID(t *testing.T) {
	fs := afero.NewMemMapFs()

	store, err := NewStoreWithFS(fs, ledgerPath, testLogger())
	require.NoError(t, err)

	entry := testEntry("abc")
	require.NoError(t, store.Upsert(entry))

	entry.SizeBytes = 200
	require.NoError(t, store.Upsert(entry))

	all := store.All()
	require.Len(t, all, 1)
	require.Equal(t, int64(200), all[0].SizeBytes)
}

func TestAllOrdered(t *testing.T) {
	fs := afero.NewMemMapFs()

	store, err := NewStoreWithFS(fs, ledgerPath, testLogger())
	require.NoError(t, err)

	for _, id := range []string{"charlie", "alpha", "bravo"} {
		require.NoError(t, store.Upsert(testEntry(id)))
	}

	all := store.All()
	require.Len(t, all, 3)
	require.Equal(t, "alpha", all[0].LogicalID)
	require.Equal(t, "bravo", all[1].LogicalID)
	require.Equal(t, "charlie", all[2].LogicalID)
}

func TestSurvivesReopen(t *testing.T) {
	fs := afero.NewMemMapFs()

	store, err := NewStoreWithFS(fs, ledgerPath, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Upsert(testEntry("abc")))

	reopened, err := NewStoreWithFS(fs, ledgerPath, testLogger())
	require.NoError(t, err)

	all := reopened.All()
	require.Len(t, all, 1)
	require.Equal(t, "abc", all[0].LogicalID)
	require.Equal(t, entity.CategoryH1B, all[0].Category)
	require.Equal(t, "/data/h1b/abc.csv", all[0].DestinationPath)
}

func TestDelete(t *testing.T) {
	fs := afero.NewMemMapFs()

	store, err := NewStoreWithFS(fs, ledgerPath, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Upsert(testEntry("abc")))
	require.NoError(t, store.Delete("abc"))

	require.Empty(t, store.All())
}
