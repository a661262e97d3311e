package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLogAppendCreatesDirAndFormatsLine(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l := NewEventLog(dir, NewWithWriter(&bytes.Buffer{}, "debug"))
	l.now = func() time.Time { return time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC) }

	l.Append("GET\t/users\thttp://localhost:3000", RequestLogFile)
	l.Append("POST\t/auth\tundefined", RequestLogFile)

	data, err := os.ReadFile(filepath.Join(dir, RequestLogFile))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2)

	fields := strings.Split(lines[0], "\t")
	require.Len(t, fields, 6)
	assert.Equal(t, "20240309", fields[0])
	assert.Equal(t, "07:05:01", fields[1])
	_, err = uuid.Parse(fields[2])
	assert.NoError(t, err)
	assert.Equal(t, "GET", fields[3])
	assert.Equal(t, "/users", fields[4])
}

func TestEventLogWriteFailureIsReported(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o640))

	var buf bytes.Buffer
	l := NewEventLog(filepath.Join(blocker, "logs"), NewWithWriter(&buf, "info"))
	l.Append("boom", ErrorLogFile)

	assert.Contains(t, buf.String(), "eventlog.write_failed")
}

func TestNilEventLogIsNoop(t *testing.T) {
	var l *EventLog
	assert.NotPanics(t, func() { l.Append("ignored", ErrorLogFile) })
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel(" Warning ").String())
	assert.Equal(t, "ERROR", parseLevel("error").String())
	assert.Equal(t, "INFO", parseLevel("bogus").String())
}
