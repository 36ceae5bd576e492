package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/osint-investigator/internal/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReadProfile_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bare", `{"name":"Jane Doe","short_summary":"CFO"}`},
		{"personData", `{"personData":{"name":"Jane Doe","short_summary":"CFO"}}`},
		{"progress", `{"status":"completed","percentage":100,"result":{"name":"Jane Doe","short_summary":"CFO"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := readProfile(writeFile(t, tt.body))
			require.NoError(t, err)
			assert.Equal(t, "Jane Doe", p.Name)
			assert.Equal(t, "CFO", p.ShortSummary)
		})
	}
}

func TestReadProfile_Errors(t *testing.T) {
	_, err := readProfile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "read profile")

	_, err = readProfile(writeFile(t, "not json"))
	assert.ErrorContains(t, err, "parse profile")

	_, err = readProfile(writeFile(t, `{"status":"running"}`))
	assert.ErrorContains(t, err, "no name")
}

func TestBuildReport(t *testing.T) {
	dir := t.TempDir()
	cfg = &config.Config{Report: config.ReportConfig{Dir: dir, Format: "yaml"}}

	p, err := readProfile(writeFile(t, `{"name":"Jane Doe"}`))
	require.NoError(t, err)

	art, err := buildReport(context.Background(), p, "")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(art.Filename, ".yaml"))
	assert.FileExists(t, filepath.Join(dir, art.Filename))

	art, err = buildReport(context.Background(), p, "xlsx")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(art.Filename, ".xlsx"))

	_, err = buildReport(context.Background(), p, "pdf")
	assert.Error(t, err)
}
