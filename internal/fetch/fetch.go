package fetch

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/crypto/blake2b"

	"github.com/mcules/rfsweep/internal/ledger"
	"github.com/mcules/rfsweep/internal/models"
)

var ErrStatus = errors.New("unexpected http status")

type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("get %s: status=%d", e.URL, e.Code)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// Recorder receives a row for every file that was actually downloaded.
type Recorder interface {
	RecordDownload(ctx context.Context, d ledger.Download) error
}

type Fetcher struct {
	Root    string
	Sources models.Sources
	HTTP    *http.Client
	Log     *log.Logger
	Ledger  Recorder
}

// New returns a fetcher without a client timeout; downloads block until done or ctx ends.
func New(root string, src models.Sources) *Fetcher {
	return &Fetcher{
		Root:    root,
		Sources: src,
		HTTP:    &http.Client{},
	}
}

type Result struct {
	Created []string
	Skipped []string
}

func (f *Fetcher) FetchAll(ctx context.Context, ms []models.Model) (Result, error) {
	var total Result
	for _, m := range ms {
		res, err := f.Fetch(ctx, m)
		total.Created = append(total.Created, res.Created...)
		total.Skipped = append(total.Skipped, res.Skipped...)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Fetch makes sure the three data files of m exist. Existing files are never re-checked,
// so a truncated earlier download stays as it is.
func (f *Fetcher) Fetch(ctx context.Context, m models.Model) (Result, error) {
	var res Result
	fs := models.Files(f.Root, f.Sources, m)

	for _, a := range fs.Artifacts() {
		if _, err := os.Stat(a.Path); err == nil {
			f.logger().Printf("%s already exists", a.Path)
			res.Skipped = append(res.Skipped, a.Path)
			continue
		}

		if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
			return res, fmt.Errorf("mkdir %s: %w", filepath.Dir(a.Path), err)
		}

		n, digest, err := f.download(ctx, a)
		if err != nil {
			return res, err
		}
		res.Created = append(res.Created, a.Path)
		f.logger().Printf("created file %s (%s)", a.Path, humanize.Bytes(uint64(n)))

		if f.Ledger != nil {
			err := f.Ledger.RecordDownload(ctx, ledger.Download{
				Path:      a.Path,
				Model:     string(a.Model),
				Kind:      string(a.Kind),
				URL:       a.URL,
				Bytes:     n,
				Digest:    digest,
				FetchedAt: time.Now(),
			})
			if err != nil {
				f.logger().Printf("fetch: ledger record failed path=%s err=%v", a.Path, err)
			}
		}
	}
	return res, nil
}

func (f *Fetcher) download(ctx context.Context, a models.Artifact) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return 0, "", err
	}
	res, err := f.client().Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("get %s: %w", a.URL, err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return 0, "", &StatusError{URL: a.URL, Code: res.StatusCode}
	}

	out, err := os.Create(a.Path)
	if err != nil {
		return 0, "", fmt.Errorf("create %s: %w", a.Path, err)
	}
	defer out.Close()

	h, _ := blake2b.New256(nil)
	n, err := io.Copy(io.MultiWriter(out, h), res.Body)
	if err != nil {
		return n, "", fmt.Errorf("write %s: %w", a.Path, err)
	}
	if err := out.Close(); err != nil {
		return n, "", fmt.Errorf("close %s: %w", a.Path, err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

func (f *Fetcher) client() *http.Client {
	if f.HTTP == nil {
		return http.DefaultClient
	}
	return f.HTTP
}

func (f *Fetcher) logger() *log.Logger {
	if f.Log == nil {
		return log.Default()
	}
	return f.Log
}
