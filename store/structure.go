package store

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Timestamp is a predicted change into Section at Time seconds
type Timestamp struct {
	Section string
	Time    float64
}

// Section is a labelled span of the piece
type Section struct {
	Label      string
	Start, End float64
}

var timestampPart = regexp.MustCompile(`([ABC]):(.+)`)

// ParseTimestamps reads "A:0:00.000;B:46.710s;..." style predictions.
// Unparseable parts are skipped. The result is sorted by time.
func ParseTimestamps(s string) []Timestamp {
	var out []Timestamp
	for _, part := range strings.Split(s, ";") {
		m := timestampPart.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			continue
		}
		t, ok := parseTime(m[2])
		if !ok {
			continue
		}
		out = append(out, Timestamp{Section: m[1], Time: t})
	}
	slices.SortStableFunc(out, func(a, b Timestamp) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	return out
}

// parseTime accepts "1:30.720" and "46.710s"
func parseTime(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if mins, sec, ok := strings.Cut(s, ":"); ok {
		m, err := strconv.Atoi(strings.TrimSpace(mins))
		if err != nil {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(sec), 64)
		if err != nil {
			return 0, false
		}
		return float64(m)*60 + f, true
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(s, "s"), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Sections splits [0, total] at each timestamp. The piece opens in section
// A; with no timestamps the whole piece is A.
func Sections(stamps []Timestamp, total float64) []Section {
	if len(stamps) == 0 {
		return []Section{{Label: "A", Start: 0, End: total}}
	}

	var out []Section
	add := func(label string, start, end float64) {
		end = min(end, total)
		if end > start {
			out = append(out, Section{Label: label, Start: start, End: end})
		}
	}

	current, start := "A", 0.0
	for _, ts := range stamps {
		add(current, start, ts.Time)
		current, start = ts.Section, ts.Time
	}
	add(current, start, total)
	return out
}

// SectionAt returns the label of the section containing pos, or "" when
// pos is outside every section
func SectionAt(sections []Section, pos float64) string {
	for _, s := range sections {
		if pos >= s.Start && pos < s.End {
			return s.Label
		}
	}
	if n := len(sections); n > 0 && pos == sections[n-1].End {
		return sections[n-1].Label
	}
	return ""
}
