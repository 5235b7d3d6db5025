package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KB", formatSize(1536))
	assert.Equal(t, "2.0 MB", formatSize(2*sizeMB))
	assert.Equal(t, "3.0 GB", formatSize(3*sizeGB))
}

func TestFormatTime_SameYearOmitsYear(t *testing.T) {
	now := time.Now()
	got := formatTime(now)
	assert.NotContains(t, got, now.Format("2006"))
}

func TestPrintTable_AlignsColumns(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"ID", "NAME"}, [][]string{
		{"1", "short"},
		{"22", "a much longer name"},
	})

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	assert.Len(t, lines, 3)
	assert.Equal(t, len(lines[1]), len(lines[2]))
}
