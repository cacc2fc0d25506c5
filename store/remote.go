package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"go-annotate/tags"
)

// Legacy server routes
const (
	PathCSV    = "/included_files.csv"
	PathUpdate = "/update-annotation"
	PathMIDI   = "/api/midi-files"
)

// UpdateRequest is the body of an annotation update
type UpdateRequest struct {
	FileID     string `json:"fileId"`
	HumanAgree bool   `json:"humanAgree"`
}

// UpdateResponse is the legacy server's reply
type UpdateResponse struct {
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Remote is a Store backed by the legacy HTTP server
type Remote struct {
	base   string
	client *http.Client
}

func NewRemote(baseURL string, client *http.Client) *Remote {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Remote{base: strings.TrimRight(baseURL, "/"), client: client}
}

func (r *Remote) do(ctx context.Context, req *http.Request) ([]byte, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fault.Wrap(err,
			fctx.With(ctx),
			fmsg.WithDesc("request "+req.URL.Path, "The annotation server is unreachable"),
			ftag.With(tags.IO))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(err, fctx.With(ctx), fmsg.With("read response"), ftag.With(tags.IO))
	}
	if resp.StatusCode == http.StatusOK {
		return body, nil
	}

	var msg UpdateResponse
	_ = json.Unmarshal(body, &msg)
	if msg.Error == "" {
		msg.Error = resp.Status
	}
	kind := tags.IO
	if resp.StatusCode == http.StatusNotFound {
		kind = tags.NotFound
	}
	return nil, fault.New(fmt.Sprintf("%s %s: %s", req.Method, req.URL.Path, resp.Status),
		fctx.With(ctx),
		fmsg.WithDesc(msg.Error, msg.Error),
		ftag.With(kind))
}

func (r *Remote) LoadAll(ctx context.Context) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+PathCSV, nil)
	if err != nil {
		return nil, fault.Wrap(err, fctx.With(ctx), fmsg.With("build request"), ftag.With(tags.InvalidArgument))
	}
	body, err := r.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return ParseRecords(body)
}

func (r *Remote) SaveAnnotation(ctx context.Context, fileID string, agree bool) error {
	ctx = fctx.WithMeta(ctx, "file_id", fileID)

	payload, err := json.Marshal(UpdateRequest{FileID: fileID, HumanAgree: agree})
	if err != nil {
		return fault.Wrap(err, fctx.With(ctx))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base+PathUpdate, bytes.NewReader(payload))
	if err != nil {
		return fault.Wrap(err, fctx.With(ctx), fmsg.With("build request"), ftag.With(tags.InvalidArgument))
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = r.do(ctx, req)
	return err
}

func (r *Remote) CountUnannotated(ctx context.Context) (int, error) {
	recs, err := r.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	return CountUnannotated(recs), nil
}

func (r *Remote) NextUnannotated(ctx context.Context, after string) (*Record, error) {
	recs, err := r.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return NextUnannotated(recs, after), nil
}
