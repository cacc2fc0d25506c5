package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go-annotate/tags"
)

const worklist = `file_id,significant_prediction,predicted_music_style,style_change_timestamps,num_tokens,confidence_scores,prediction
c.mid,yes,ABA,"A:0:00.000;B:46.710s;A:1:30.720",812,"0.9,0.8",ABA
a.mid,no,AB,B:12.5s,400,0.7,AB
b.mid,yes,AAB,,120,0.6,AAB
`

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "included_files.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func ids(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.FileID
	}
	return out
}

func TestCSVLoadAllSorted(t *testing.T) {
	s := NewCSVStore(writeCSV(t, worklist))
	recs, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(ids(recs), " "); got != "a.mid b.mid c.mid" {
		t.Fatalf("order = %s", got)
	}
	c := recs[2]
	if c.StyleChangeTimestamps != "A:0:00.000;B:46.710s;A:1:30.720" || c.ConfidenceScores != "0.9,0.8" {
		t.Errorf("quoted fields = %+v", c)
	}
	if c.HumanAgree != nil {
		t.Errorf("human_agree = %v before annotation", *c.HumanAgree)
	}
}

func TestCSVSaveAnnotation(t *testing.T) {
	ctx := context.Background()
	path := writeCSV(t, worklist)
	s := NewCSVStore(path)

	if err := s.SaveAnnotation(ctx, "b.mid", true); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveAnnotation(ctx, "c.mid", false); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if !strings.HasSuffix(lines[0], ",human_agree") {
		t.Errorf("header = %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], "c.mid,") || !strings.Contains(lines[1], `"0.9,0.8"`) || !strings.HasSuffix(lines[1], ",false") {
		t.Errorf("row not preserved: %s", lines[1])
	}

	recs, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := recs[0].Mark() + recs[1].Mark() + recs[2].Mark(); got != "✓✗" {
		t.Errorf("marks = %q", got)
	}
	n, err := s.CountUnannotated(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountUnannotated = %d, %v", n, err)
	}

	if err := s.SaveAnnotation(ctx, "missing.mid", true); !tags.Is(err, tags.NotFound) {
		t.Errorf("SaveAnnotation(missing) = %v", err)
	}
}

func TestCSVMissingFile(t *testing.T) {
	s := NewCSVStore(filepath.Join(t.TempDir(), "none.csv"))
	if _, err := s.LoadAll(context.Background()); !tags.Is(err, tags.NotFound) {
		t.Errorf("LoadAll = %v", err)
	}
}

func TestNextUnannotated(t *testing.T) {
	yes := true
	recs := []Record{
		{FileID: "a"},
		{FileID: "b", HumanAgree: &yes},
		{FileID: "c"},
		{FileID: "d", HumanAgree: &yes},
	}
	tests := []struct {
		after string
		want  string
	}{
		{"", "a"},
		{"a", "c"},
		{"b", "c"},
		{"c", "a"},
		{"z", "a"},
	}
	for _, tt := range tests {
		got := NextUnannotated(recs, tt.after)
		if got == nil || got.FileID != tt.want {
			t.Errorf("NextUnannotated(%q) = %v, want %s", tt.after, got, tt.want)
		}
	}

	done := []Record{{FileID: "a", HumanAgree: &yes}}
	if got := NextUnannotated(done, ""); got != nil {
		t.Errorf("NextUnannotated(all done) = %v", got)
	}
	if n := CountUnannotated(recs); n != 2 {
		t.Errorf("CountUnannotated = %d", n)
	}
	if i := Index(recs, "c"); i != 2 {
		t.Errorf("Index = %d", i)
	}
}

func TestParseTimestamps(t *testing.T) {
	got := ParseTimestamps("A:1:30.720; B:46.710s ;junk;C:oops;A:0:00.000")
	want := []Timestamp{{"A", 0}, {"B", 46.71}, {"A", 90.72}}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i].Section != want[i].Section || !approx(got[i].Time, want[i].Time) {
			t.Errorf("[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if got := ParseTimestamps(""); len(got) != 0 {
		t.Errorf("empty = %v", got)
	}
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

func TestSections(t *testing.T) {
	tests := []struct {
		name   string
		stamps []Timestamp
		total  float64
		want   []Section
	}{
		{"none", nil, 30, []Section{{"A", 0, 30}}},
		{
			"leading change",
			[]Timestamp{{"B", 10}, {"C", 20}},
			30,
			[]Section{{"A", 0, 10}, {"B", 10, 20}, {"C", 20, 30}},
		},
		{
			"starts at zero",
			[]Timestamp{{"A", 0}, {"B", 12}},
			20,
			[]Section{{"A", 0, 12}, {"B", 12, 20}},
		},
		{
			"past the end",
			[]Timestamp{{"B", 25}, {"C", 40}},
			30,
			[]Section{{"A", 0, 25}, {"B", 25, 30}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sections(tt.stamps, tt.total)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}

	secs := Sections([]Timestamp{{"B", 10}}, 20)
	if SectionAt(secs, 5) != "A" || SectionAt(secs, 10) != "B" || SectionAt(secs, 20) != "B" || SectionAt(secs, 21) != "" {
		t.Errorf("SectionAt over %v", secs)
	}
}

func TestRemote(t *testing.T) {
	var saved UpdateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PathCSV:
			w.Header().Set("Content-Type", "text/csv")
			w.Write([]byte(worklist))
		case PathUpdate:
			json.NewDecoder(r.Body).Decode(&saved)
			if saved.FileID == "missing.mid" {
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(UpdateResponse{Error: "File not found in CSV"})
				return
			}
			json.NewEncoder(w).Encode(UpdateResponse{Success: true, Message: "Annotation updated successfully"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	r := NewRemote(srv.URL+"/", nil)

	next, err := r.NextUnannotated(ctx, "a.mid")
	if err != nil || next == nil || next.FileID != "b.mid" {
		t.Fatalf("NextUnannotated = %v, %v", next, err)
	}
	n, err := r.CountUnannotated(ctx)
	if err != nil || n != 3 {
		t.Errorf("CountUnannotated = %d, %v", n, err)
	}

	if err := r.SaveAnnotation(ctx, "a.mid", true); err != nil {
		t.Fatal(err)
	}
	if saved.FileID != "a.mid" || !saved.HumanAgree {
		t.Errorf("server got %+v", saved)
	}
	if err := r.SaveAnnotation(ctx, "missing.mid", false); !tags.Is(err, tags.NotFound) {
		t.Errorf("SaveAnnotation(missing) = %v", err)
	}
}
