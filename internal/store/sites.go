package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"indie-blog-circles/internal/model"
)

const siteColumns = `id, url, name, ssg, theme, comment_system, feed_url, languages,
    etag, last_modified, page_etag, page_last_modified, crawl_tier, next_crawl_at,
    trust_score, hop_count, has_opml, opml_url, has_webmention, webmention_endpoint,
    has_microformats, advertised_feed, author, error_count, last_error, last_crawled_at, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSite(sc scanner) (model.Site, error) {
	var (
		st                     model.Site
		langs                  string
		nextCrawl, lastCrawled sql.NullTime
		createdAt              sql.NullTime
		hop                    sql.NullInt64
		hasOPML, hasWM, hasMF  int
	)
	err := sc.Scan(&st.ID, &st.URL, &st.Name, &st.SSG, &st.Theme, &st.CommentSystem, &st.FeedURL, &langs,
		&st.ETag, &st.LastModified, &st.PageETag, &st.PageLastModified, &st.CrawlTier, &nextCrawl,
		&st.TrustScore, &hop, &hasOPML, &st.OPMLURL, &hasWM, &st.WebMentionEndpoint,
		&hasMF, &st.AdvertisedFeed, &st.Author, &st.ErrorCount, &st.LastError, &lastCrawled, &createdAt)
	if err != nil {
		return st, err
	}
	st.Languages = splitLangs(langs)
	st.NextCrawlAt = timePtr(nextCrawl)
	st.LastCrawledAt = timePtr(lastCrawled)
	if createdAt.Valid {
		st.CreatedAt = createdAt.Time
	}
	st.HopCount = intPtr(hop)
	st.HasOPML, st.HasWebMention, st.HasMicroformats = hasOPML == 1, hasWM == 1, hasMF == 1
	return st, nil
}

func (s *SQLite) querySites(ctx context.Context, q string, args ...any) ([]model.Site, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	defer rows.Close()
	var out []model.Site
	for rows.Next() {
		st, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sites: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return out, nil
}

// EnsureSite 插入站点（url 已存在则忽略），返回是否新建。
// languages 只在新建时写入。
func (s *SQLite) EnsureSite(ctx context.Context, url string, languages []string) (bool, error) {
	if url == "" {
		return false, errors.New("site.url required")
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO sites(url, languages, trust_score, created_at)
        VALUES(?,?,?,?)
        ON CONFLICT(url) DO NOTHING`,
		url, joinLangs(languages), model.DefaultTrust, s.now())
	if err != nil {
		return false, fmt.Errorf("ensure site %s: %w", url, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetSite 按 URL 查询站点，不存在返回 ErrNotFound。
func (s *SQLite) GetSite(ctx context.Context, url string) (model.Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE url = ?`, url)
	st, err := scanSite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return st, fmt.Errorf("site %s: %w", url, ErrNotFound)
	}
	if err != nil {
		return st, fmt.Errorf("get site %s: %w", url, err)
	}
	return st, nil
}

// ListSites 返回全部站点，按 id 排序。
func (s *SQLite) ListSites(ctx context.Context) ([]model.Site, error) {
	return s.querySites(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY id`)
}

// ListSitesForSweep 返回批量索引的处理顺序：从未抓取的优先，其次按上次抓取时间从早到晚。
func (s *SQLite) ListSitesForSweep(ctx context.Context) ([]model.Site, error) {
	return s.querySites(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY last_crawled_at ASC NULLS FIRST, id ASC`)
}

// Signals 为爬取编排写回站点行的识别结果，整体覆盖。
// 站点行的 feed_url/etag/last_modified 只由批量索引写入，这里不涉及。
type Signals struct {
	Name               string
	SSG                string
	Theme              string
	CommentSystem      string
	AdvertisedFeed     string
	Author             string
	OPMLURL            string
	WebMentionEndpoint string
	HasMicroformats    bool
	PageETag           string
	PageLastModified   string
}

// UpdateSignals 覆盖指纹与协议字段；Name 为空时保留原值。
func (s *SQLite) UpdateSignals(ctx context.Context, url string, sg Signals) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sites SET
            name = COALESCE(NULLIF(?, ''), name),
            ssg = ?, theme = ?, comment_system = ?,
            advertised_feed = ?, author = ?,
            has_opml = ?, opml_url = ?,
            has_webmention = ?, webmention_endpoint = ?,
            has_microformats = ?,
            page_etag = ?, page_last_modified = ?
        WHERE url = ?`,
		sg.Name, sg.SSG, sg.Theme, sg.CommentSystem, sg.AdvertisedFeed, sg.Author,
		boolInt(sg.OPMLURL != ""), sg.OPMLURL,
		boolInt(sg.WebMentionEndpoint != ""), sg.WebMentionEndpoint,
		boolInt(sg.HasMicroformats), sg.PageETag, sg.PageLastModified, url)
	if err != nil {
		return fmt.Errorf("update signals %s: %w", url, err)
	}
	return nil
}

// CrawlSuccess 为一次成功索引后写回的调度信息。
type CrawlSuccess struct {
	CrawledAt    time.Time
	Tier         string
	NextCrawlAt  time.Time
	FeedURL      string
	ETag         string
	LastModified string
}

// RecordSiteSuccess 清零连续错误并写回调度与订阅校验值；FeedURL 为空时保留原值。
func (s *SQLite) RecordSiteSuccess(ctx context.Context, url string, c CrawlSuccess) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sites SET
            error_count = 0, last_error = '',
            last_crawled_at = ?, crawl_tier = ?, next_crawl_at = ?,
            feed_url = COALESCE(NULLIF(?, ''), feed_url),
            etag = ?, last_modified = ?
        WHERE url = ?`,
		nullTime(&c.CrawledAt), c.Tier, nullTime(&c.NextCrawlAt), c.FeedURL, c.ETag, c.LastModified, url)
	if err != nil {
		return fmt.Errorf("record success %s: %w", url, err)
	}
	return nil
}

// RecordSiteError 连续错误数加一并记录错误信息。
func (s *SQLite) RecordSiteError(ctx context.Context, url, msg string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sites SET error_count = error_count + 1, last_error = ? WHERE url = ?`, msg, url)
	if err != nil {
		return fmt.Errorf("record error %s: %w", url, err)
	}
	return nil
}

// SetLanguages 覆盖站点语言标签。
func (s *SQLite) SetLanguages(ctx context.Context, url string, langs []string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sites SET languages = ? WHERE url = ?`, joinLangs(langs), url)
	if err != nil {
		return fmt.Errorf("set languages %s: %w", url, err)
	}
	return nil
}

// prefixed 给列清单加表别名前缀。
func prefixed(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
