package fetch

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcules/rfsweep/internal/ledger"
	"github.com/mcules/rfsweep/internal/models"
)

type memRecorder struct {
	mu   sync.Mutex
	rows []ledger.Download
}

func (r *memRecorder) RecordDownload(_ context.Context, d ledger.Download) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, d)
	return nil
}

func newServer(t *testing.T, hits *int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		_, _ = io.WriteString(w, "body:"+r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newFetcher(root string, srv *httptest.Server) *Fetcher {
	f := New(root, models.Sources{
		FeatureBase:    srv.URL + "/models",
		ImportanceBase: srv.URL + "/misc",
	})
	f.Log = log.New(io.Discard, "", 0)
	return f
}

func TestFetchAllCreatesEveryFile(t *testing.T) {
	var hits int64
	srv := newServer(t, &hits)
	root := t.TempDir()
	f := newFetcher(root, srv)
	rec := &memRecorder{}
	f.Ledger = rec

	all := models.All()
	res, err := f.FetchAll(context.Background(), all)
	require.NoError(t, err)
	require.Len(t, res.Created, 3*len(all))
	require.Empty(t, res.Skipped)
	require.Equal(t, int64(3*len(all)), atomic.LoadInt64(&hits))
	require.Len(t, rec.rows, 3*len(all))

	for _, m := range all {
		for _, a := range models.Files(root, f.Sources, m).Artifacts() {
			b, err := os.ReadFile(a.Path)
			require.NoError(t, err, a.Path)
			require.True(t, strings.HasPrefix(string(b), "body:/"))
		}
	}
	require.Len(t, rec.rows[0].Digest, 64)
}

func TestFetchIsIdempotent(t *testing.T) {
	var hits int64
	srv := newServer(t, &hits)
	f := newFetcher(t.TempDir(), srv)

	_, err := f.FetchAll(context.Background(), models.All())
	require.NoError(t, err)
	before := atomic.LoadInt64(&hits)

	res, err := f.FetchAll(context.Background(), models.All())
	require.NoError(t, err)
	require.Equal(t, before, atomic.LoadInt64(&hits), "second run must not touch the network")
	require.Empty(t, res.Created)
	require.Len(t, res.Skipped, 21)
}

func TestFetchKeepsExistingFileUntouched(t *testing.T) {
	var hits int64
	srv := newServer(t, &hits)
	root := t.TempDir()
	f := newFetcher(root, srv)

	fs := models.Files(root, f.Sources, "IG_MHC.3.CYS.SG")
	require.NoError(t, os.MkdirAll(fs.Dir, 0o755))
	require.NoError(t, os.WriteFile(fs.Pos.Path, []byte("trunc"), 0o644))

	res, err := f.Fetch(context.Background(), "IG_MHC.3.CYS.SG")
	require.NoError(t, err)
	require.Equal(t, []string{fs.Pos.Path}, res.Skipped)
	require.Equal(t, int64(2), atomic.LoadInt64(&hits))

	b, err := os.ReadFile(fs.Pos.Path)
	require.NoError(t, err)
	require.Equal(t, "trunc", string(b))
}

func TestFetchStatusErrorAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".neg.ff.gz") {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	root := t.TempDir()
	f := newFetcher(root, srv)

	res, err := f.FetchAll(context.Background(), models.All())
	require.ErrorIs(t, err, ErrStatus)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusNotFound, se.Code)

	// Only the first model's pos file got written before the abort.
	require.Len(t, res.Created, 1)
	fs := models.Files(root, f.Sources, models.All()[0])
	_, statErr := os.Stat(fs.Neg.Path)
	require.True(t, os.IsNotExist(statErr))
}
