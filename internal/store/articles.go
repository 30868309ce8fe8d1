package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"indie-blog-circles/internal/model"
)

// InsertArticle 按 URL 插入文章，已存在则忽略；返回文章 id 与是否新插入。
func (s *SQLite) InsertArticle(ctx context.Context, a model.Article) (int64, bool, error) {
	if a.URL == "" {
		return 0, false, errors.New("article.url required")
	}
	disc := a.DiscoveredAt
	if disc.IsZero() {
		disc = s.now()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO articles(site_id, url, title, description, cover_image, author, language, published_at, discovered_at)
        VALUES(?,?,?,?,?,?,?,?,?)
        ON CONFLICT(url) DO NOTHING`,
		a.SiteID, a.URL, a.Title, a.Description, a.CoverImage, a.Author, a.Language, nullTime(a.PublishedAt), disc.UTC())
	if err != nil {
		return 0, false, fmt.Errorf("insert article %s: %w", a.URL, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("article id %s: %w", a.URL, err)
		}
		return id, true, nil
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM articles WHERE url = ?`, a.URL).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("lookup article %s: %w", a.URL, err)
	}
	return id, false, nil
}

// ListArticles 返回站点的全部文章，按发布时间倒序。
func (s *SQLite) ListArticles(ctx context.Context, siteID int64) ([]model.Article, error) {
	return s.queryArticles(ctx, `SELECT id, site_id, url, title, description, cover_image, author, language, published_at, discovered_at
        FROM articles WHERE site_id = ? ORDER BY published_at DESC, id DESC`, siteID)
}

// ArticlesMissingLanguage 返回尚未检测语言的文章，最多 limit 条。
func (s *SQLite) ArticlesMissingLanguage(ctx context.Context, limit int) ([]model.Article, error) {
	return s.queryArticles(ctx, `SELECT id, site_id, url, title, description, cover_image, author, language, published_at, discovered_at
        FROM articles WHERE language = '' ORDER BY id LIMIT ?`, limit)
}

func (s *SQLite) queryArticles(ctx context.Context, q string, args ...any) ([]model.Article, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()
	var out []model.Article
	for rows.Next() {
		var a model.Article
		var pub, disc sql.NullTime
		if err := rows.Scan(&a.ID, &a.SiteID, &a.URL, &a.Title, &a.Description, &a.CoverImage, &a.Author, &a.Language, &pub, &disc); err != nil {
			return nil, fmt.Errorf("scan articles: %w", err)
		}
		a.PublishedAt = timePtr(pub)
		a.DiscoveredAt = disc.Time
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return out, nil
}

// SetArticleLanguage 回填文章语言（文章插入后唯一允许的修改）。
func (s *SQLite) SetArticleLanguage(ctx context.Context, id int64, lang string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE articles SET language = ? WHERE id = ?`, lang, id); err != nil {
		return fmt.Errorf("set article language %d: %w", id, err)
	}
	return nil
}

// ArticleStats 为站点文章的统计，用于内容质量与抓取分层。
type ArticleStats struct {
	Total    int
	Dated    int        // 带发布时间的文章数
	Authored int        // 带作者署名的文章数
	Recent   int        // since 之后发布的文章数
	Latest   *time.Time // 最近一篇的发布时间
}

// SiteArticleStats 统计站点文章；since 用于计算近期发文量。
func (s *SQLite) SiteArticleStats(ctx context.Context, siteID int64, since time.Time) (ArticleStats, error) {
	var st ArticleStats
	rows, err := s.db.QueryContext(ctx, `SELECT published_at, author FROM articles WHERE site_id = ?`, siteID)
	if err != nil {
		return st, fmt.Errorf("query article stats %d: %w", siteID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			pub    sql.NullTime
			author string
		)
		if err := rows.Scan(&pub, &author); err != nil {
			return st, fmt.Errorf("scan article stats: %w", err)
		}
		st.Total++
		if author != "" {
			st.Authored++
		}
		if !pub.Valid || pub.Time.IsZero() {
			continue
		}
		st.Dated++
		if !pub.Time.Before(since) {
			st.Recent++
		}
		if st.Latest == nil || pub.Time.After(*st.Latest) {
			t := pub.Time
			st.Latest = &t
		}
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("iterate article stats: %w", err)
	}
	return st, nil
}

// LatestCommentCount 返回文章最近一次快照的评论数；没有快照时 ok 为 false。
func (s *SQLite) LatestCommentCount(ctx context.Context, articleID int64) (count int, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT count FROM comment_snapshots WHERE article_id = ? ORDER BY id DESC LIMIT 1`, articleID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("latest comment count %d: %w", articleID, err)
	}
	return count, true, nil
}

// InsertCommentSnapshot 追加一条评论数快照。
func (s *SQLite) InsertCommentSnapshot(ctx context.Context, articleID int64, count int, at time.Time) error {
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO comment_snapshots(article_id, count, observed_at) VALUES(?,?,?)`,
		articleID, count, at.UTC())
	if err != nil {
		return fmt.Errorf("insert comment snapshot %d: %w", articleID, err)
	}
	return nil
}
