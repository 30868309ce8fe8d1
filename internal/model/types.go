// 包 model 定义站点图谱与文章索引的数据模型（站点/关系/文章/评论快照/统计）。
package model

import "time"

// 关系发现方式。优先级：opml > xfn/microformat > heuristic。
const (
	MethodOPML        = "opml"
	MethodXFN         = "xfn"
	MethodMicroformat = "microformat"
	MethodHeuristic   = "heuristic"
)

// KindFriendLink 为目前唯一的关系类型。
const KindFriendLink = "friend_link"

// DefaultTrust 为尚未计算信任分时的默认值。
const DefaultTrust = 0.5

// Site 表示一个独立博客站点，URL 为唯一标识。
type Site struct {
	ID            int64      `json:"id"`
	URL           string     `json:"url"`
	Name          string     `json:"name,omitempty"`
	SSG           string     `json:"ssg,omitempty"`
	Theme         string     `json:"theme,omitempty"`
	CommentSystem string     `json:"comment_system,omitempty"`
	FeedURL       string     `json:"feed_url,omitempty"`
	Languages     []string   `json:"languages,omitempty"`
	// ETag/LastModified 为订阅的缓存校验值（批量索引使用）
	ETag         string `json:"-"`
	LastModified string `json:"-"`
	// PageETag/PageLastModified 为首页的缓存校验值（爬取编排使用）
	PageETag         string     `json:"-"`
	PageLastModified string     `json:"-"`
	CrawlTier        string     `json:"crawl_tier,omitempty"`
	NextCrawlAt      *time.Time `json:"next_crawl_at,omitempty"`
	TrustScore       float64    `json:"trust_score"`
	// HopCount 为 nil 表示无法从任何根种子到达
	HopCount           *int       `json:"hop_count"`
	HasOPML            bool       `json:"has_opml"`
	OPMLURL            string     `json:"opml_url,omitempty"`
	HasWebMention      bool       `json:"has_webmention"`
	WebMentionEndpoint string     `json:"webmention_endpoint,omitempty"`
	HasMicroformats    bool       `json:"has_microformats"`
	AdvertisedFeed     string     `json:"advertised_feed,omitempty"`
	Author             string     `json:"author,omitempty"`
	ErrorCount         int        `json:"error_count"`
	LastError          string     `json:"last_error,omitempty"`
	LastCrawledAt      *time.Time `json:"last_crawled_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Relationship 为 source → target 的有向边（target 站点行可能稍后才创建）。
type Relationship struct {
	ID           int64     `json:"id"`
	SourceURL    string    `json:"source"`
	TargetURL    string    `json:"target"`
	Kind         string    `json:"kind"`
	Method       string    `json:"method"`
	Confidence   float64   `json:"confidence"`
	DiscoveredAt time.Time `json:"discovered_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// Article 为站点的一篇文章，插入后仅允许回填语言。
type Article struct {
	ID           int64      `json:"id"`
	SiteID       int64      `json:"site_id"`
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	CoverImage   string     `json:"cover_image,omitempty"`
	Author       string     `json:"author,omitempty"`
	Language     string     `json:"language,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	DiscoveredAt time.Time  `json:"discovered_at"`
}

// CommentSnapshot 为某一时刻的评论数，只追加不修改。
type CommentSnapshot struct {
	ID         int64     `json:"id"`
	ArticleID  int64     `json:"article_id"`
	Count      int       `json:"count"`
	ObservedAt time.Time `json:"observed_at"`
}

// GraphStats 为图谱覆盖度统计。
type GraphStats struct {
	Sites         int            `json:"sites"`
	Relationships int            `json:"relationships"`
	ByMethod      map[string]int `json:"by_method"`
	Reached       int            `json:"reached"`
	Unreached     int            `json:"unreached"`
	HopHistogram  map[int]int    `json:"hop_histogram"`
	AvgTrust      float64        `json:"avg_trust"`
	WithOPML      int            `json:"with_opml"`
	Articles      int            `json:"articles"`
	Candidates    int            `json:"candidates"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Export 为图谱导出文件的顶层结构。
type Export struct {
	Stats         GraphStats     `json:"stats"`
	Candidates    []string       `json:"candidates"` // 衍生种子候选站点
	Sites         []Site         `json:"sites"`
	Relationships []Relationship `json:"relationships"`
}
