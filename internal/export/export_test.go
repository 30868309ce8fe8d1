package export

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indie-blog-circles/internal/model"
	"indie-blog-circles/internal/store"
)

func TestToJSON_SortsByTrust(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := store.OpenSQLite(filepath.Join(dir, "t.db"))
	require.NoError(t, err)
	defer s.Close()

	for _, u := range []string{"https://a.dev", "https://b.dev", "https://c.dev"} {
		_, err := s.EnsureSite(ctx, u, []string{"en"})
		require.NoError(t, err)
	}
	zero, one := 0, 1
	require.NoError(t, s.SetTrust(ctx, "https://b.dev", 1.0, &zero))
	require.NoError(t, s.SetTrust(ctx, "https://c.dev", 0.76, &one))
	require.NoError(t, s.UpsertRelationship(ctx, model.Relationship{
		SourceURL: "https://b.dev", TargetURL: "https://c.dev", Method: model.MethodXFN, Confidence: 0.9,
	}))

	out := filepath.Join(dir, "nested", "graph.json")
	stats := model.GraphStats{Sites: 3, Relationships: 1, Candidates: 1}
	require.NoError(t, ToJSON(ctx, s, stats, []string{"https://b.dev"}, out))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	var e model.Export
	require.NoError(t, json.Unmarshal(b, &e))
	require.Len(t, e.Sites, 3)
	assert.Equal(t, []string{"https://b.dev", "https://c.dev", "https://a.dev"},
		[]string{e.Sites[0].URL, e.Sites[1].URL, e.Sites[2].URL})
	assert.Nil(t, e.Sites[2].HopCount)
	require.Len(t, e.Relationships, 1)
	assert.Equal(t, "https://c.dev", e.Relationships[0].TargetURL)
	assert.Equal(t, 3, e.Stats.Sites)
	assert.Equal(t, []string{"https://b.dev"}, e.Candidates)
}

func TestEncode_EmptyGraph(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, model.Export{Candidates: []string{}}))
	assert.Contains(t, buf.String(), `"candidates": []`)
	assert.Contains(t, buf.String(), `"sites": null`)
}
