package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"go-annotate/debug"
	"go-annotate/tags"
)

// CSVStore keeps the worklist in a CSV file. Rows are rewritten in place
// and unknown columns are preserved.
type CSVStore struct {
	mu   sync.Mutex
	path string
}

func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

func (s *CSVStore) Path() string { return s.path }

// table is the raw file: header plus rows, ragged rows allowed
type table struct {
	header []string
	rows   [][]string
}

func (t *table) col(name string) int {
	return slices.IndexFunc(t.header, func(h string) bool { return strings.TrimSpace(h) == name })
}

func (t *table) field(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// idCol is the file_id column, or the first column as the legacy server
// assumed
func (t *table) idCol() int {
	if c := t.col(ColFileID); c >= 0 {
		return c
	}
	return 0
}

func (t *table) records() []Record {
	id := t.idCol()
	cols := map[string]int{}
	for _, name := range []string{ColSignificant, ColStyle, ColTimestamps, ColNumTokens, ColConfidence, ColPrediction, ColHumanAgree} {
		cols[name] = t.col(name)
	}

	recs := make([]Record, 0, len(t.rows))
	for _, row := range t.rows {
		fileID := t.field(row, id)
		if fileID == "" || fileID == ColFileID {
			continue
		}
		recs = append(recs, Record{
			FileID:                fileID,
			SignificantPrediction: t.field(row, cols[ColSignificant]),
			PredictedMusicStyle:   t.field(row, cols[ColStyle]),
			StyleChangeTimestamps: t.field(row, cols[ColTimestamps]),
			NumTokens:             t.field(row, cols[ColNumTokens]),
			ConfidenceScores:      t.field(row, cols[ColConfidence]),
			Prediction:            t.field(row, cols[ColPrediction]),
			HumanAgree:            parseAgree(t.field(row, cols[ColHumanAgree])),
		})
	}
	sortRecords(recs)
	return recs
}

// readTable parses worklist CSV
func readTable(data []byte) (*table, error) {
	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	all, err := r.ReadAll()
	if err != nil {
		return nil, fault.Wrap(err,
			fmsg.WithDesc("parse csv", "The annotation file is not valid CSV"),
			ftag.With(tags.Parse))
	}
	if len(all) == 0 {
		return &table{}, nil
	}
	return &table{header: all[0], rows: all[1:]}, nil
}

// ParseRecords decodes worklist CSV into sorted records
func ParseRecords(data []byte) ([]Record, error) {
	t, err := readTable(data)
	if err != nil {
		return nil, err
	}
	return t.records(), nil
}

func (s *CSVStore) read(ctx context.Context) (*table, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		kind := tags.IO
		if os.IsNotExist(err) {
			kind = tags.NotFound
		}
		return nil, fault.Wrap(err,
			fctx.With(ctx),
			fmsg.WithDesc("read csv", "The annotation file could not be read"),
			ftag.With(kind))
	}
	t, err := readTable(data)
	if err != nil {
		return nil, fault.Wrap(err, fctx.With(ctx))
	}
	return t, nil
}

// write replaces the file through a temp file in the same directory
func (s *CSVStore) write(ctx context.Context, t *table) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".annotations-*.csv")
	if err != nil {
		return fault.Wrap(err, fctx.With(ctx), fmsg.With("create temp csv"), ftag.With(tags.IO))
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(t.header); err != nil {
		tmp.Close()
		return fault.Wrap(err, fctx.With(ctx), fmsg.With("write csv header"), ftag.With(tags.IO))
	}
	if err := w.WriteAll(t.rows); err != nil {
		tmp.Close()
		return fault.Wrap(err, fctx.With(ctx), fmsg.With("write csv rows"), ftag.With(tags.IO))
	}
	if err := tmp.Close(); err != nil {
		return fault.Wrap(err, fctx.With(ctx), fmsg.With("close temp csv"), ftag.With(tags.IO))
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fault.Wrap(err,
			fctx.With(ctx),
			fmsg.WithDesc("replace csv", "The annotation could not be saved"),
			ftag.With(tags.IO))
	}
	return nil
}

func (s *CSVStore) LoadAll(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	return t.records(), nil
}

// SaveAnnotation adds the human_agree column when the file lacks it
func (s *CSVStore) SaveAnnotation(ctx context.Context, fileID string, agree bool) error {
	ctx = fctx.WithMeta(ctx, "file_id", fileID)

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.read(ctx)
	if err != nil {
		return err
	}

	agreeCol := t.col(ColHumanAgree)
	if agreeCol < 0 {
		t.header = append(t.header, ColHumanAgree)
		agreeCol = len(t.header) - 1
	}

	id := t.idCol()
	found := false
	for i, row := range t.rows {
		if t.field(row, id) != fileID {
			continue
		}
		for len(row) <= agreeCol {
			row = append(row, "")
		}
		row[agreeCol] = formatAgree(agree)
		t.rows[i] = row
		found = true
		break
	}
	if !found {
		return fault.New(fmt.Sprintf("file %q not in csv", fileID),
			fctx.With(ctx),
			fmsg.WithDesc("file not found in csv", "File not found in CSV"),
			ftag.With(tags.NotFound))
	}

	if err := s.write(ctx, t); err != nil {
		return err
	}
	debug.Log("store", "%s human_agree=%v", fileID, agree)
	return nil
}

func (s *CSVStore) CountUnannotated(ctx context.Context) (int, error) {
	recs, err := s.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	return CountUnannotated(recs), nil
}

func (s *CSVStore) NextUnannotated(ctx context.Context, after string) (*Record, error) {
	recs, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return NextUnannotated(recs, after), nil
}
