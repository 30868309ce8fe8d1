// 包 store 提供 SQLite 持久化：站点、关系边、文章与评论快照。
// 写入均为单行 upsert / insert-or-ignore，不跨挂起点持有事务。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound 表示记录不存在。
var ErrNotFound = errors.New("not found")

// SQLite 封装 *sql.DB，基于 modernc.org/sqlite（纯 Go 实现）。
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite 打开 SQLite 数据库并执行自动迁移。
func OpenSQLite(path string) (*SQLite, error) {
	// modernc sqlite 的 DSN 可直接使用文件路径，或以 'file:...' 前缀表示
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// 单连接：写入由连接串行化
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// Reset 清空全部业务表（不删除数据库文件）。
func (s *SQLite) Reset(ctx context.Context) error {
	for _, t := range []string{"comment_snapshots", "articles", "relationships", "sites"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+t); err != nil {
			return fmt.Errorf("delete %s: %w", t, err)
		}
	}
	return nil
}

// migrate 执行建表语句，保持幂等。
func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sites (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            url TEXT NOT NULL UNIQUE,
            name TEXT NOT NULL DEFAULT '',
            ssg TEXT NOT NULL DEFAULT '',
            theme TEXT NOT NULL DEFAULT '',
            comment_system TEXT NOT NULL DEFAULT '',
            feed_url TEXT NOT NULL DEFAULT '',
            languages TEXT NOT NULL DEFAULT '',
            etag TEXT NOT NULL DEFAULT '',
            last_modified TEXT NOT NULL DEFAULT '',
            page_etag TEXT NOT NULL DEFAULT '',
            page_last_modified TEXT NOT NULL DEFAULT '',
            crawl_tier TEXT NOT NULL DEFAULT '',
            next_crawl_at TIMESTAMP,
            trust_score REAL NOT NULL DEFAULT 0.5,
            hop_count INTEGER,
            has_opml INTEGER NOT NULL DEFAULT 0,
            opml_url TEXT NOT NULL DEFAULT '',
            has_webmention INTEGER NOT NULL DEFAULT 0,
            webmention_endpoint TEXT NOT NULL DEFAULT '',
            has_microformats INTEGER NOT NULL DEFAULT 0,
            advertised_feed TEXT NOT NULL DEFAULT '',
            author TEXT NOT NULL DEFAULT '',
            error_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT NOT NULL DEFAULT '',
            last_crawled_at TIMESTAMP,
            created_at TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS relationships (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            source_url TEXT NOT NULL,
            target_url TEXT NOT NULL,
            kind TEXT NOT NULL,
            method TEXT NOT NULL,
            confidence REAL NOT NULL,
            discovered_at TIMESTAMP,
            last_seen_at TIMESTAMP,
            UNIQUE(source_url, target_url, kind)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_url);`,
		`CREATE TABLE IF NOT EXISTS articles (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            site_id INTEGER NOT NULL,
            url TEXT NOT NULL UNIQUE,
            title TEXT NOT NULL DEFAULT '',
            description TEXT NOT NULL DEFAULT '',
            cover_image TEXT NOT NULL DEFAULT '',
            author TEXT NOT NULL DEFAULT '',
            language TEXT NOT NULL DEFAULT '',
            published_at TIMESTAMP,
            discovered_at TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_articles_site ON articles(site_id);`,
		`CREATE TABLE IF NOT EXISTS comment_snapshots (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            article_id INTEGER NOT NULL,
            count INTEGER NOT NULL,
            observed_at TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_article ON comment_snapshots(article_id, id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec migrate: %w", err)
		}
	}
	return nil
}

func joinLangs(langs []string) string { return strings.Join(langs, ",") }

func splitLangs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
