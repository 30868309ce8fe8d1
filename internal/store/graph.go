package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"indie-blog-circles/internal/model"
)

// UpsertRelationship 按 (source, target, kind) 插入或刷新边的方式、置信度与最后发现时间。
func (s *SQLite) UpsertRelationship(ctx context.Context, r model.Relationship) error {
	if r.SourceURL == "" || r.TargetURL == "" {
		return errors.New("relationship source and target required")
	}
	if r.Kind == "" {
		r.Kind = model.KindFriendLink
	}
	now := s.now()
	seen := r.LastSeenAt
	if seen.IsZero() {
		seen = now
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO relationships(source_url, target_url, kind, method, confidence, discovered_at, last_seen_at)
        VALUES(?,?,?,?,?,?,?)
        ON CONFLICT(source_url, target_url, kind) DO UPDATE SET
            method = excluded.method, confidence = excluded.confidence, last_seen_at = excluded.last_seen_at`,
		r.SourceURL, r.TargetURL, r.Kind, r.Method, r.Confidence, now, seen.UTC())
	if err != nil {
		return fmt.Errorf("upsert relationship %s -> %s: %w", r.SourceURL, r.TargetURL, err)
	}
	return nil
}

// ListRelationships 返回全部边，按 id 排序。
func (s *SQLite) ListRelationships(ctx context.Context) ([]model.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, source_url, target_url, kind, method, confidence, discovered_at, last_seen_at
        FROM relationships ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()
	var out []model.Relationship
	for rows.Next() {
		var r model.Relationship
		var disc, seen sql.NullTime
		if err := rows.Scan(&r.ID, &r.SourceURL, &r.TargetURL, &r.Kind, &r.Method, &r.Confidence, &disc, &seen); err != nil {
			return nil, fmt.Errorf("scan relationships: %w", err)
		}
		r.DiscoveredAt, r.LastSeenAt = disc.Time, seen.Time
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relationships: %w", err)
	}
	return out, nil
}

// OutboundCount 返回站点的友链出边数。
func (s *SQLite) OutboundCount(ctx context.Context, url string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM relationships WHERE source_url = ? AND kind = ?`,
		url, model.KindFriendLink).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count outbound %s: %w", url, err)
	}
	return n, nil
}

// IncomingEdge 为一条入边及其来源站点的当前信任与跳数。
type IncomingEdge struct {
	SourceURL   string
	Method      string
	Confidence  float64
	SourceTrust float64
	SourceHop   *int
}

// IncomingEdges 返回指向 url 的全部友链入边；来源站点行缺失时按默认信任、未知跳数处理。
func (s *SQLite) IncomingEdges(ctx context.Context, url string) ([]IncomingEdge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT r.source_url, r.method, r.confidence,
            COALESCE(src.trust_score, ?), src.hop_count
        FROM relationships r LEFT JOIN sites src ON src.url = r.source_url
        WHERE r.target_url = ? AND r.kind = ?
        ORDER BY r.id`, model.DefaultTrust, url, model.KindFriendLink)
	if err != nil {
		return nil, fmt.Errorf("query incoming %s: %w", url, err)
	}
	defer rows.Close()
	var out []IncomingEdge
	for rows.Next() {
		var e IncomingEdge
		var hop sql.NullInt64
		if err := rows.Scan(&e.SourceURL, &e.Method, &e.Confidence, &e.SourceTrust, &hop); err != nil {
			return nil, fmt.Errorf("scan incoming: %w", err)
		}
		e.SourceHop = intPtr(hop)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incoming: %w", err)
	}
	return out, nil
}

// ResetHops 清空全部跳数，信任传播开始前调用。
func (s *SQLite) ResetHops(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE sites SET hop_count = NULL`); err != nil {
		return fmt.Errorf("reset hops: %w", err)
	}
	return nil
}

// SetTrust 写回站点的信任分与跳数。
func (s *SQLite) SetTrust(ctx context.Context, url string, score float64, hop *int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sites SET trust_score = ?, hop_count = ? WHERE url = ?`, score, nullInt(hop), url)
	if err != nil {
		return fmt.Errorf("set trust %s: %w", url, err)
	}
	return nil
}

// FrontierTargets 返回来源跳数为 hop、自身跳数仍未知的边目标。
func (s *SQLite) FrontierTargets(ctx context.Context, hop int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT r.target_url
        FROM relationships r
        JOIN sites src ON src.url = r.source_url
        JOIN sites dst ON dst.url = r.target_url
        WHERE r.kind = ? AND src.hop_count = ? AND dst.hop_count IS NULL
        ORDER BY r.target_url`, model.KindFriendLink, hop)
	if err != nil {
		return nil, fmt.Errorf("query frontier hop=%d: %w", hop, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan frontier: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frontier: %w", err)
	}
	return out, nil
}

// FloorUnreached 将不可达站点的信任分设为 floor，返回受影响行数。
func (s *SQLite) FloorUnreached(ctx context.Context, floor float64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE sites SET trust_score = ? WHERE hop_count IS NULL`, floor)
	if err != nil {
		return 0, fmt.Errorf("floor unreached: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CandidateRow 为衍生种子候选的查询结果。
type CandidateRow struct {
	Site          model.Site
	OutboundCount int
}

// DerivedSeedCandidates 按关系条件筛选：发布 OPML、信任 ≥ minTrust、出边 ≥ minLinks。
func (s *SQLite) DerivedSeedCandidates(ctx context.Context, minTrust float64, minLinks int) ([]CandidateRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+prefixed("s", siteColumns)+`, COUNT(r.id) AS outbound
        FROM sites s JOIN relationships r ON r.source_url = s.url AND r.kind = ?
        WHERE s.has_opml = 1 AND s.trust_score >= ?
        GROUP BY s.id
        HAVING COUNT(r.id) >= ?
        ORDER BY s.trust_score DESC, outbound DESC, s.id`, model.KindFriendLink, minTrust, minLinks)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()
	var out []CandidateRow
	for rows.Next() {
		var c CandidateRow
		site, err := scanSite(scanFunc(func(dest ...any) error {
			return rows.Scan(append(dest, &c.OutboundCount)...)
		}))
		if err != nil {
			return nil, fmt.Errorf("scan candidates: %w", err)
		}
		c.Site = site
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

// GraphStats 汇总图谱覆盖度；Candidates 由调用方填充。
func (s *SQLite) GraphStats(ctx context.Context) (model.GraphStats, error) {
	st := model.GraphStats{ByMethod: map[string]int{}, HopHistogram: map[int]int{}}
	counts := []struct {
		q   string
		dst *int
	}{
		{`SELECT COUNT(1) FROM sites`, &st.Sites},
		{`SELECT COUNT(1) FROM relationships`, &st.Relationships},
		{`SELECT COUNT(1) FROM sites WHERE hop_count IS NOT NULL`, &st.Reached},
		{`SELECT COUNT(1) FROM sites WHERE has_opml = 1`, &st.WithOPML},
		{`SELECT COUNT(1) FROM articles`, &st.Articles},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.q).Scan(c.dst); err != nil {
			return st, fmt.Errorf("graph stats: %w", err)
		}
	}
	st.Unreached = st.Sites - st.Reached
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(AVG(trust_score), 0) FROM sites`).Scan(&st.AvgTrust); err != nil {
		return st, fmt.Errorf("avg trust: %w", err)
	}
	if err := s.groupCount(ctx, `SELECT method, COUNT(1) FROM relationships GROUP BY method`, func(k string, n int) {
		st.ByMethod[k] = n
	}); err != nil {
		return st, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT hop_count, COUNT(1) FROM sites WHERE hop_count IS NOT NULL GROUP BY hop_count`)
	if err != nil {
		return st, fmt.Errorf("hop histogram: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var hop, n int
		if err := rows.Scan(&hop, &n); err != nil {
			return st, fmt.Errorf("scan hop histogram: %w", err)
		}
		st.HopHistogram[hop] = n
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("iterate hop histogram: %w", err)
	}
	st.UpdatedAt = s.now()
	return st, nil
}

func (s *SQLite) groupCount(ctx context.Context, q string, fn func(string, int)) error {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("group count: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return fmt.Errorf("scan group count: %w", err)
		}
		fn(k, n)
	}
	return rows.Err()
}
