// Package store holds the annotation worklist: one record per MIDI file
// with the model's structure prediction and the reviewer's verdict.
package store

import (
	"context"
	"slices"
	"strings"
)

// CSV column names
const (
	ColFileID      = "file_id"
	ColSignificant = "significant_prediction"
	ColStyle       = "predicted_music_style"
	ColTimestamps  = "style_change_timestamps"
	ColNumTokens   = "num_tokens"
	ColConfidence  = "confidence_scores"
	ColPrediction  = "prediction"
	ColHumanAgree  = "human_agree"
)

// Record is one worklist row. HumanAgree is nil until annotated.
type Record struct {
	FileID                string `json:"file_id"`
	SignificantPrediction string `json:"significant_prediction"`
	PredictedMusicStyle   string `json:"predicted_music_style"`
	StyleChangeTimestamps string `json:"style_change_timestamps"`
	NumTokens             string `json:"num_tokens"`
	ConfidenceScores      string `json:"confidence_scores"`
	Prediction            string `json:"prediction"`
	HumanAgree            *bool  `json:"human_agree"`
}

// Annotated reports whether a verdict has been recorded
func (r Record) Annotated() bool { return r.HumanAgree != nil }

// Mark returns ✓, ✗ or "" for list display
func (r Record) Mark() string {
	switch {
	case r.HumanAgree == nil:
		return ""
	case *r.HumanAgree:
		return "✓"
	}
	return "✗"
}

// Store is the annotation backend
type Store interface {
	// LoadAll returns every record sorted by file id
	LoadAll(ctx context.Context) ([]Record, error)
	// SaveAnnotation records a verdict. Unknown ids are a not-found fault.
	SaveAnnotation(ctx context.Context, fileID string, agree bool) error
	CountUnannotated(ctx context.Context) (int, error)
	// NextUnannotated returns the first unannotated record after the given
	// id, wrapping to the first one. It returns nil when none remain.
	NextUnannotated(ctx context.Context, after string) (*Record, error)
}

func sortRecords(recs []Record) {
	slices.SortStableFunc(recs, func(a, b Record) int {
		return strings.Compare(a.FileID, b.FileID)
	})
}

// CountUnannotated counts records without a verdict
func CountUnannotated(recs []Record) int {
	n := 0
	for _, r := range recs {
		if !r.Annotated() {
			n++
		}
	}
	return n
}

// NextUnannotated picks from sorted records. An empty after starts at the
// beginning.
func NextUnannotated(recs []Record, after string) *Record {
	var first *Record
	for i := range recs {
		r := &recs[i]
		if r.Annotated() {
			continue
		}
		if first == nil {
			first = r
		}
		if after == "" || r.FileID > after {
			out := *r
			return &out
		}
	}
	if first == nil {
		return nil
	}
	out := *first
	return &out
}

// Index returns the position of fileID in recs, or -1
func Index(recs []Record, fileID string) int {
	return slices.IndexFunc(recs, func(r Record) bool { return r.FileID == fileID })
}

func parseAgree(s string) *bool {
	var v bool
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		v = true
	case "false":
		v = false
	default:
		return nil
	}
	return &v
}

func formatAgree(agree bool) string {
	if agree {
		return "true"
	}
	return "false"
}
