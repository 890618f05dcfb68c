package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
)

var ErrNotFound = errors.New("question not found")

// Record is one entry of the reference answer file.
type Record struct {
	QuestionID string `json:"Question ID"`
	Problem    string `json:"Problem"`
	Solution   string `json:"Solution"`
	Level      string `json:"Level"`
}

// LevelNumber parses "Level N". Unparseable levels report 0.
func (r Record) LevelNumber() int {
	raw := strings.TrimSpace(r.Level)
	if len(raw) > len("level") && strings.EqualFold(raw[:len("level")], "level") {
		raw = strings.TrimSpace(raw[len("level"):])
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Dataset holds the reference records in file order. It is read-only after
// construction and safe for concurrent use.
type Dataset struct {
	records []Record
}

func New(records []Record) *Dataset {
	copied := make([]Record, len(records))
	copy(copied, records)
	return &Dataset{records: copied}
}

// Load reads a JSON array of records from path.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset failed: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode dataset %s failed: %w", path, err)
	}
	return New(records), nil
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// Lookup returns the first record whose id equals questionID exactly.
func (d *Dataset) Lookup(questionID string) (Record, error) {
	if d == nil {
		return Record{}, ErrNotFound
	}
	for _, r := range d.records {
		if r.QuestionID == questionID {
			return r, nil
		}
	}
	return Record{}, ErrNotFound
}

// RandomByLevel returns up to n distinct records of the given level in random order.
func (d *Dataset) RandomByLevel(level, n int) []Record {
	if d == nil || n <= 0 {
		return []Record{}
	}
	matching := make([]Record, 0)
	for _, r := range d.records {
		if r.LevelNumber() == level {
			matching = append(matching, r)
		}
	}
	rand.Shuffle(len(matching), func(i, j int) {
		matching[i], matching[j] = matching[j], matching[i]
	})
	if len(matching) > n {
		matching = matching[:n]
	}
	return matching
}
