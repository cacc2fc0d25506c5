package midi

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"go-annotate/tags"
)

// Library resolves file ids to MIDI bytes. Files come from a local
// directory, or from an HTTP base URL when one is configured.
type Library struct {
	Dir     string
	BaseURL string
	Client  *http.Client
}

// NewLibrary creates a library. A non-empty baseURL takes precedence over dir.
func NewLibrary(dir, baseURL string) *Library {
	return &Library{
		Dir:     dir,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  http.DefaultClient,
	}
}

// Fetch returns the raw bytes for a file id
func (l *Library) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	ctx = fctx.WithMeta(ctx, "file_id", fileID)
	if fileID == "" || strings.Contains(fileID, "..") {
		return nil, fault.New("invalid file id",
			fctx.With(ctx),
			fmsg.WithDesc("invalid file id", "That file name is not allowed"),
			ftag.With(tags.InvalidArgument))
	}
	if l.BaseURL != "" {
		return l.fetchURL(ctx, fileID)
	}

	data, err := os.ReadFile(filepath.Join(l.Dir, filepath.FromSlash(fileID)))
	if err != nil {
		kind := tags.IO
		if os.IsNotExist(err) {
			kind = tags.NotFound
		}
		return nil, fault.Wrap(err,
			fctx.With(ctx),
			fmsg.WithDesc("read midi file", "MIDI file not found: "+fileID),
			ftag.With(kind))
	}
	return data, nil
}

func (l *Library) fetchURL(ctx context.Context, fileID string) ([]byte, error) {
	u, err := url.Parse(l.BaseURL)
	if err != nil {
		return nil, fault.Wrap(err, fctx.With(ctx), fmsg.With("parse base url"), ftag.With(tags.InvalidArgument))
	}
	u.Path = path.Join(u.Path, fileID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fault.Wrap(err, fctx.With(ctx), fmsg.With("build request"))
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fault.Wrap(err,
			fctx.With(ctx),
			fmsg.WithDesc("fetch midi file", "Could not download the MIDI file"),
			ftag.With(tags.IO))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		kind := tags.IO
		if resp.StatusCode == http.StatusNotFound {
			kind = tags.NotFound
		}
		return nil, fault.New("unexpected status "+resp.Status,
			fctx.With(ctx),
			fmsg.WithDesc("fetch midi file", "MIDI file not found: "+u.String()),
			ftag.With(kind))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(err, fctx.With(ctx), fmsg.With("read response body"), ftag.With(tags.IO))
	}
	return data, nil
}

// ListDir returns the names of the *.mid files in dir, sorted
func ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fault.Wrap(err,
			fmsg.WithDesc("read midi directory", "Failed to read MIDI files"),
			ftag.With(tags.IO))
	}
	files := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".mid") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}
