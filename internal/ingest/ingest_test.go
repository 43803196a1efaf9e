package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadFile_JSONArray(t *testing.T) {
	path := writeFile(t, "inquiries.json", `[{"text": "first inquiry"}, {"text": "second inquiry"}]`)

	fileID, records, err := ReadFile(path, 0)

	require.NoError(t, err)
	assert.Equal(t, "inquiries", fileID)
	require.Len(t, records, 2)
	assert.Equal(t, "first inquiry", records[0].Text)
	assert.Equal(t, "second inquiry", records[1].Text)
}

func TestReadFile_TextLines(t *testing.T) {
	path := writeFile(t, "leads_week1.txt", "first inquiry\n\n  second inquiry  \n\n")

	fileID, records, err := ReadFile(path, 0)

	require.NoError(t, err)
	assert.Equal(t, "leads_week1", fileID)
	require.Len(t, records, 2)
	assert.Equal(t, "second inquiry", records[1].Text)
}

func TestReadFile_UnsupportedExtension(t *testing.T) {
	path := writeFile(t, "inquiries.csv", "a,b")

	_, _, err := ReadFile(path, 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported file extension ".csv"`)
}

func TestReadFile_MissingFile(t *testing.T) {
	_, _, err := ReadFile(filepath.Join(t.TempDir(), "nope.json"), 0)
	require.Error(t, err)
}

func TestParse_EmptyArray(t *testing.T) {
	_, err := Parse([]byte(`[]`), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no records")
}

func TestParse_NotAnArray(t *testing.T) {
	_, err := Parse([]byte(`{"entries": []}`), 0)
	require.Error(t, err)
}

func TestParse_EmptyRecordRejected(t *testing.T) {
	_, err := Parse([]byte(`[{"text": "real inquiry"}, {"text": "   "}]`), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1 is empty")
}

func TestParse_OversizedRecordRejected(t *testing.T) {
	big := strings.Repeat("x", 100)
	_, err := Parse([]byte(`[{"text": "`+big+`"}]`), 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 50 bytes")
}

func TestParseText_OnlyBlankLines(t *testing.T) {
	_, err := ParseText([]byte("\n \n\t\n"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no records")
}

func TestParseText_PreservesLineOrder(t *testing.T) {
	records, err := ParseText([]byte("a\nb\nc"), 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "a", records[0].Text)
	assert.Equal(t, "c", records[2].Text)
}
