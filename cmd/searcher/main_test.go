package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus/corpustest"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/segment"
)

func writeArtifact(t *testing.T) string {
	t.Helper()
	c := corpustest.New()
	snap, err := indexer.NewBuilder(indexer.Options{}).Build(context.Background(), c)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "test.scrx")
	_, err = segment.NewWriter().Write(path, snap, c)
	require.NoError(t, err)
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	err := app.Run(append([]string{"searcher"}, args...))
	return out.String(), err
}

func TestQueryPrintsLines(t *testing.T) {
	artifact := writeArtifact(t)
	out, err := run(t, "query", "--artifact", artifact, "god")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `<span class="match">God</span>`)
}

func TestQueryFlagsOverridePreferences(t *testing.T) {
	artifact := writeArtifact(t)
	prefs := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(prefs, []byte(
		`{"includedSources":{"nt":true},"includedBooks":{"nt":["John"]}}`), 0o644))

	out, err := run(t, "query", "--artifact", artifact, "--prefs", prefs, "--and", "--json", "god", "word")
	require.NoError(t, err)
	var result struct {
		TotalHits int      `json:"total_hits"`
		Results   []string `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result.TotalHits)
	require.Len(t, result.Results, 1)
	assert.Contains(t, result.Results[0], "John 1:1")
}

func TestQueryRequiresText(t *testing.T) {
	_, err := run(t, "query", "--artifact", writeArtifact(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is required")
}

func TestPreview(t *testing.T) {
	artifact := writeArtifact(t)
	out, err := run(t, "preview", "--artifact", artifact, "ot:0.0.0")
	require.NoError(t, err)
	assert.Contains(t, out, "In the beginning God created")

	_, err = run(t, "preview", "--artifact", artifact, "zz:1")
	assert.Error(t, err)
}

func TestMissingArtifact(t *testing.T) {
	_, err := run(t, "query", "--artifact", filepath.Join(t.TempDir(), "none.scrx"), "god")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading artifact")
}
