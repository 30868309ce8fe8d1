package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indie-blog-circles/internal/model"
)

func openTemp(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnsureSite_InsertOrIgnore(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	created, err := s.EnsureSite(ctx, "https://alice.dev", []string{"zh", "en"})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.EnsureSite(ctx, "https://alice.dev", []string{"ja"})
	require.NoError(t, err)
	assert.False(t, created)

	site, err := s.GetSite(ctx, "https://alice.dev")
	require.NoError(t, err)
	assert.Equal(t, []string{"zh", "en"}, site.Languages)
	assert.Equal(t, model.DefaultTrust, site.TrustScore)
	assert.Nil(t, site.HopCount)
	assert.False(t, site.CreatedAt.IsZero())

	_, err = s.GetSite(ctx, "https://nobody.dev")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.EnsureSite(ctx, "", nil)
	assert.Error(t, err)
}

func TestUpdateSignals_OverwriteKeepsName(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	_, _ = s.EnsureSite(ctx, "https://alice.dev", nil)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordSiteSuccess(ctx, "https://alice.dev", CrawlSuccess{
		CrawledAt: now, Tier: "active", NextCrawlAt: now, FeedURL: "https://alice.dev/index.xml", ETag: `"f1"`,
	}))
	require.NoError(t, s.UpdateSignals(ctx, "https://alice.dev", Signals{
		Name: "Alice", SSG: "hexo", Theme: "butterfly", CommentSystem: "twikoo",
		AdvertisedFeed: "https://alice.dev/atom.xml", Author: "Alice Liddell",
		OPMLURL: "https://alice.dev/blogroll.opml", HasMicroformats: true, PageETag: `"p1"`,
	}))

	site, err := s.GetSite(ctx, "https://alice.dev")
	require.NoError(t, err)
	assert.Equal(t, "https://alice.dev/atom.xml", site.AdvertisedFeed)
	assert.Equal(t, "Alice Liddell", site.Author)

	require.NoError(t, s.UpdateSignals(ctx, "https://alice.dev", Signals{SSG: "hugo"}))
	site, err = s.GetSite(ctx, "https://alice.dev")
	require.NoError(t, err)
	assert.Equal(t, "Alice", site.Name)
	assert.Equal(t, "hugo", site.SSG)
	assert.Empty(t, site.Theme)
	assert.Empty(t, site.AdvertisedFeed)
	assert.Empty(t, site.Author)
	assert.False(t, site.HasOPML)
	assert.Empty(t, site.PageETag)
	// 订阅地址与校验值归批量索引所有，识别结果不会改写
	assert.Equal(t, "https://alice.dev/index.xml", site.FeedURL)
	assert.Equal(t, `"f1"`, site.ETag)
}

func TestUpsertRelationship_UniquePerKind(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	r := model.Relationship{SourceURL: "https://a.dev", TargetURL: "https://b.dev", Method: model.MethodHeuristic, Confidence: 0.6}
	require.NoError(t, s.UpsertRelationship(ctx, r))
	r.Method, r.Confidence = model.MethodXFN, 0.9
	require.NoError(t, s.UpsertRelationship(ctx, r))

	rels, err := s.ListRelationships(ctx)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, model.KindFriendLink, rels[0].Kind)
	assert.Equal(t, model.MethodXFN, rels[0].Method)
	assert.Equal(t, 0.9, rels[0].Confidence)

	n, err := s.OutboundCount(ctx, "https://a.dev")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTrustQueries(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	clock := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	for _, u := range []string{"https://root.dev", "https://a.dev", "https://b.dev", "https://island.dev"} {
		_, err := s.EnsureSite(ctx, u, nil)
		require.NoError(t, err)
	}
	edges := [][2]string{{"https://root.dev", "https://a.dev"}, {"https://a.dev", "https://b.dev"}, {"https://nowhere.dev", "https://b.dev"}}
	for _, e := range edges {
		require.NoError(t, s.UpsertRelationship(ctx, model.Relationship{SourceURL: e[0], TargetURL: e[1], Method: model.MethodHeuristic, Confidence: 0.6}))
	}
	zero := 0
	require.NoError(t, s.ResetHops(ctx))
	require.NoError(t, s.SetTrust(ctx, "https://root.dev", 1, &zero))

	front, err := s.FrontierTargets(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.dev"}, front)

	in, err := s.IncomingEdges(ctx, "https://b.dev")
	require.NoError(t, err)
	require.Len(t, in, 2)
	assert.Equal(t, "https://a.dev", in[0].SourceURL)
	assert.Nil(t, in[0].SourceHop)
	// 来源行缺失：默认信任
	assert.Equal(t, model.DefaultTrust, in[1].SourceTrust)

	n, err := s.FloorUnreached(ctx, 0.1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	st, err := s.GraphStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Sites)
	assert.Equal(t, 3, st.Relationships)
	assert.Equal(t, 1, st.Reached)
	assert.Equal(t, 3, st.Unreached)
	assert.Equal(t, map[int]int{0: 1}, st.HopHistogram)
	assert.Equal(t, map[string]int{model.MethodHeuristic: 3}, st.ByMethod)
	assert.Equal(t, clock, st.UpdatedAt)
}

func TestDerivedSeedCandidates(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	for _, u := range []string{"https://hub.dev", "https://small.dev"} {
		_, _ = s.EnsureSite(ctx, u, nil)
		require.NoError(t, s.UpdateSignals(ctx, u, Signals{OPMLURL: u + "/blogroll.opml"}))
		require.NoError(t, s.SetTrust(ctx, u, 0.9, nil))
	}
	for i := 0; i < 10; i++ {
		target := "https://t" + string(rune('a'+i)) + ".dev"
		require.NoError(t, s.UpsertRelationship(ctx, model.Relationship{SourceURL: "https://hub.dev", TargetURL: target, Method: model.MethodOPML, Confidence: 0.95}))
	}
	require.NoError(t, s.UpsertRelationship(ctx, model.Relationship{SourceURL: "https://small.dev", TargetURL: "https://ta.dev", Method: model.MethodOPML, Confidence: 0.95}))

	got, err := s.DerivedSeedCandidates(ctx, 0.8, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://hub.dev", got[0].Site.URL)
	assert.Equal(t, 10, got[0].OutboundCount)
	assert.True(t, got[0].Site.HasOPML)
}

func TestSweepOrderAndBookkeeping(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	for _, u := range []string{"https://old.dev", "https://new.dev", "https://never.dev", "https://recent.dev"} {
		_, _ = s.EnsureSite(ctx, u, nil)
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordSiteSuccess(ctx, "https://recent.dev", CrawlSuccess{CrawledAt: base.Add(48 * time.Hour), Tier: "active", NextCrawlAt: base.Add(49 * time.Hour)}))
	require.NoError(t, s.RecordSiteSuccess(ctx, "https://old.dev", CrawlSuccess{CrawledAt: base, Tier: "dormant", NextCrawlAt: base.Add(168 * time.Hour), ETag: `"v1"`}))
	require.NoError(t, s.RecordSiteSuccess(ctx, "https://new.dev", CrawlSuccess{CrawledAt: base.Add(24 * time.Hour), Tier: "normal"}))

	sites, err := s.ListSitesForSweep(ctx)
	require.NoError(t, err)
	var order []string
	for _, st := range sites {
		order = append(order, st.URL)
	}
	assert.Equal(t, []string{"https://never.dev", "https://old.dev", "https://new.dev", "https://recent.dev"}, order)

	require.NoError(t, s.RecordSiteError(ctx, "https://old.dev", "timeout"))
	require.NoError(t, s.RecordSiteError(ctx, "https://old.dev", "HTTP 500"))
	old, err := s.GetSite(ctx, "https://old.dev")
	require.NoError(t, err)
	assert.Equal(t, 2, old.ErrorCount)
	assert.Equal(t, "HTTP 500", old.LastError)
	assert.Equal(t, `"v1"`, old.ETag)
	assert.Equal(t, "dormant", old.CrawlTier)
	require.NotNil(t, old.LastCrawledAt)
	assert.True(t, base.Equal(*old.LastCrawledAt))

	require.NoError(t, s.RecordSiteSuccess(ctx, "https://old.dev", CrawlSuccess{CrawledAt: base.Add(72 * time.Hour), Tier: "dormant"}))
	old, _ = s.GetSite(ctx, "https://old.dev")
	assert.Zero(t, old.ErrorCount)
	assert.Empty(t, old.LastError)
}

func TestArticlesAndSnapshots(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	_, _ = s.EnsureSite(ctx, "https://alice.dev", nil)
	site, _ := s.GetSite(ctx, "https://alice.dev")

	pub := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	id, inserted, err := s.InsertArticle(ctx, model.Article{SiteID: site.ID, URL: "https://alice.dev/p/1", Title: "Hello", PublishedAt: &pub})
	require.NoError(t, err)
	assert.True(t, inserted)
	id2, inserted, err := s.InsertArticle(ctx, model.Article{SiteID: site.ID, URL: "https://alice.dev/p/1", Title: "Changed"})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, id, id2)
	_, _, err = s.InsertArticle(ctx, model.Article{SiteID: site.ID, URL: "https://alice.dev/p/2", Author: "Alice"})
	require.NoError(t, err)

	list, err := s.ListArticles(ctx, site.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.ElementsMatch(t, []string{"", "Alice"}, []string{list[0].Author, list[1].Author})

	stats, err := s.SiteArticleStats(ctx, site.ID, pub.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ArticleStats{Total: 2, Dated: 1, Authored: 1, Recent: 1, Latest: stats.Latest}, stats)
	require.NotNil(t, stats.Latest)
	assert.True(t, pub.Equal(*stats.Latest))

	missing, err := s.ArticlesMissingLanguage(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, missing, 2)
	require.NoError(t, s.SetArticleLanguage(ctx, id, "zh"))
	missing, _ = s.ArticlesMissingLanguage(ctx, 10)
	assert.Len(t, missing, 1)

	_, ok, err := s.LatestCommentCount(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, s.InsertCommentSnapshot(ctx, id, 3, time.Time{}))
	require.NoError(t, s.InsertCommentSnapshot(ctx, id, 5, time.Time{}))
	n, ok, err := s.LatestCommentCount(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, n)

	require.NoError(t, s.Reset(ctx))
	sites, _ := s.ListSites(ctx)
	assert.Empty(t, sites)
}
