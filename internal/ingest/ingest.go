// Package ingest reads raw inquiry files and converts them into pipeline
// input records. Two formats are accepted: a JSON array of {"text": ...}
// objects, and plain text with one inquiry per non-empty line.
package ingest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/triage-cli/internal/model"
)

// maxTextSize caps a single inquiry; oversized records are rejected at
// ingest rather than truncated mid-pipeline.
const defaultMaxTextSize = 8000

// ReadFile parses the file at path into ingest records and derives the
// batch file_id from the filename stem. maxTextSize <= 0 applies the
// default cap.
func ReadFile(path string, maxTextSize int) (fileID string, records []model.IngestRecord, err error) {
	if maxTextSize <= 0 {
		maxTextSize = defaultMaxTextSize
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" && ext != ".txt" {
		return "", nil, eris.Errorf("ingest: unsupported file extension %q (want .json or .txt)", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, eris.Wrap(err, "ingest: read file")
	}

	fileID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if fileID == "" {
		return "", nil, eris.Errorf("ingest: cannot derive file_id from %q", path)
	}

	switch ext {
	case ".json":
		records, err = Parse(data, maxTextSize)
	case ".txt":
		records, err = ParseText(data, maxTextSize)
	}
	if err != nil {
		return "", nil, err
	}
	return fileID, records, nil
}

// Parse decodes a JSON array of {"text": ...} inquiry objects.
func Parse(data []byte, maxTextSize int) ([]model.IngestRecord, error) {
	var raw []model.IngestRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "ingest: decode json array")
	}
	texts := make([]string, len(raw))
	for i, r := range raw {
		texts[i] = r.Text
	}
	return build(texts, maxTextSize)
}

// ParseText converts plain text into records, one per non-empty line.
func ParseText(data []byte, maxTextSize int) ([]model.IngestRecord, error) {
	var texts []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			texts = append(texts, line)
		}
	}
	return build(texts, maxTextSize)
}

func build(texts []string, maxTextSize int) ([]model.IngestRecord, error) {
	if maxTextSize <= 0 {
		maxTextSize = defaultMaxTextSize
	}
	records := make([]model.IngestRecord, 0, len(texts))
	for i, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, eris.Errorf("ingest: record %d is empty", i)
		}
		if len(t) > maxTextSize {
			return nil, eris.Errorf("ingest: record %d exceeds %d bytes", i, maxTextSize)
		}
		records = append(records, model.IngestRecord{Text: t})
	}
	if len(records) == 0 {
		return nil, eris.New("ingest: no records in input")
	}
	return records, nil
}
