package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sample = `[
  {"Question ID": "question-1", "Problem": "Solve x+2=4", "Solution": "x=2", "Level": "Level 1"},
  {"Question ID": "question-2", "Problem": "Integrate x", "Solution": "x^2/2 + C", "Level": "Level 3"},
  {"Question ID": "question-3", "Problem": "Area of 3-4-5", "Solution": "6", "Level": "Level 3"},
  {"Question ID": "question-1", "Problem": "duplicate", "Solution": "ignored", "Level": "Level 2"},
  {"Question ID": "question-5", "Problem": "?", "Solution": "?", "Level": "Level ?"}
]`

func loadSample(t *testing.T) *Dataset {
	t.Helper()
	path := filepath.Join(t.TempDir(), "questions.json")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	d, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return d
}

func TestLookupFirstExactMatch(t *testing.T) {
	d := loadSample(t)
	rec, err := d.Lookup("question-1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if rec.Solution != "x=2" {
		t.Fatalf("expected first record, got %+v", rec)
	}
	for _, id := range []string{"question-4", "Question-1", "question-1 ", ""} {
		if _, err := d.Lookup(id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%q: expected not found, got %v", id, err)
		}
	}
}

func TestLevelNumber(t *testing.T) {
	cases := map[string]int{"Level 3": 3, "level 2": 2, "5": 5, "Level ?": 0, "": 0}
	for in, want := range cases {
		if got := (Record{Level: in}).LevelNumber(); got != want {
			t.Fatalf("LevelNumber(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestRandomByLevel(t *testing.T) {
	d := loadSample(t)
	got := d.RandomByLevel(3, 3)
	if len(got) != 2 {
		t.Fatalf("expected both level 3 records, got %d", len(got))
	}
	if got[0].QuestionID == got[1].QuestionID {
		t.Fatalf("records must be distinct")
	}
	if len(d.RandomByLevel(3, 1)) != 1 {
		t.Fatalf("expected cap at n")
	}
	if len(d.RandomByLevel(9, 3)) != 0 {
		t.Fatalf("expected no records for unknown level")
	}
}

func TestLoadRejectsBadFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.json")
	_ = os.WriteFile(path, []byte("{"), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestNilDataset(t *testing.T) {
	var d *Dataset
	if _, err := d.Lookup("question-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on nil dataset")
	}
	if d.Len() != 0 {
		t.Fatalf("expected zero length")
	}
}
