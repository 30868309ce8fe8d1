// 包 config 负责加载与校验应用配置（settings.yaml），
// 对外提供结构体 Config 及默认值/合法性校验。
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// 种子来源类型。
const (
	SourceCircle    = "circle"
	SourceWebring   = "webring"
	SourceBlogroll  = "blogroll"
	SourceDirectory = "directory"
)

type Config struct {
	SeedSources []SeedSource `yaml:"SEED_SOURCES"`
	// RootSeeds 为额外的信任锚点；种子来源本身的 URL 也是根种子
	RootSeeds   []string    `yaml:"ROOT_SEEDS"`
	Blocklist   []string    `yaml:"EXTRA_BLOCKLIST"`
	Database    Database    `yaml:"DATABASE"`
	Concurrency Concurrency `yaml:"CONCURRENCY"`
	Proxy       Proxy       `yaml:"PROXY"`
	Crawl       Crawl       `yaml:"CRAWL"`
	Cron        Cron        `yaml:"CRON"`
	MetricsAddr string      `yaml:"METRICS_ADDR"`
	LogLevel    string      `yaml:"LOG_LEVEL"`
	LogFormat   string      `yaml:"LOG_FORMAT"` // text|json|pretty
	LogLocale   string      `yaml:"LOG_LOCALE"` // zh-CN|en
	LogColor    string      `yaml:"LOG_COLOR"`  // auto|always|never
}

// SeedSource 为一个社区入口（博客圈/开往/友链目录等）。
type SeedSource struct {
	URL       string   `yaml:"url"`
	Name      string   `yaml:"name"`
	Type      string   `yaml:"type"`
	Languages []string `yaml:"languages"`
}

type Database struct {
	Type string `yaml:"type"` // sqlite (default)
	DSN  string `yaml:"dsn"`  // ./circles.db
}

type Concurrency struct {
	Fetch int `yaml:"fetch"` // 索引与爬取的并发数
	Seeds int `yaml:"seeds"` // 种子来源并发数
	Retry int `yaml:"retry"` // 订阅/种子等调用方重试次数
}

type Proxy struct {
	HTTP  string `yaml:"http"`
	HTTPS string `yaml:"https"`
}

type Crawl struct {
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	UserAgent      string  `yaml:"user_agent"`
	PerHostRPS     float64 `yaml:"per_host_rps"`
	MaxHops        int     `yaml:"max_hops"`
	FetchOPML      *bool   `yaml:"fetch_opml"`
	// DueOnly 为 true 时，批量索引仅处理到期（按抓取分层）的站点
	DueOnly bool `yaml:"due_only"`
}

type Cron struct {
	Sweep string `yaml:"sweep"` // 例如 "@every 1h"
	Trust string `yaml:"trust"` // 例如 "@daily"
}

// Timeout 返回单次请求的硬超时。
func (c Crawl) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// OPMLEnabled 默认开启 OPML 友链抓取。
func (c Crawl) OPMLEnabled() bool {
	return c.FetchOPML == nil || *c.FetchOPML
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Validate 负责合法性检查与默认值设置，避免在业务层分散判空逻辑。
func (c *Config) Validate() error {
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Type != "sqlite" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "./circles.db"
	}
	if c.Concurrency.Fetch <= 0 {
		c.Concurrency.Fetch = 8
	}
	if c.Concurrency.Seeds <= 0 {
		c.Concurrency.Seeds = 4
	}
	if c.Concurrency.Retry < 0 {
		return errors.New("CONCURRENCY.retry must be >= 0")
	}
	if c.Crawl.TimeoutSeconds < 0 {
		return errors.New("CRAWL.timeout_seconds must be >= 0")
	}
	if c.Crawl.TimeoutSeconds == 0 {
		c.Crawl.TimeoutSeconds = 15
	}
	if c.Crawl.PerHostRPS < 0 {
		return errors.New("CRAWL.per_host_rps must be >= 0")
	}
	if c.Crawl.MaxHops < 0 {
		return errors.New("CRAWL.max_hops must be >= 0")
	}
	if c.Crawl.MaxHops == 0 {
		c.Crawl.MaxHops = 10
	}
	for i := range c.SeedSources {
		s := &c.SeedSources[i]
		if strings.TrimSpace(s.URL) == "" {
			return fmt.Errorf("SEED_SOURCES[%d]: url required", i)
		}
		s.Type = strings.ToLower(strings.TrimSpace(s.Type))
		switch s.Type {
		case "":
			s.Type = SourceDirectory
		case SourceCircle, SourceWebring, SourceBlogroll, SourceDirectory:
		default:
			return fmt.Errorf("SEED_SOURCES[%d]: unknown type %q", i, s.Type)
		}
		langs, err := NormalizeLanguages(s.Languages)
		if err != nil {
			return fmt.Errorf("SEED_SOURCES[%d]: %w", i, err)
		}
		s.Languages = langs
	}
	if c.LogFormat == "" {
		c.LogFormat = "pretty"
	}
	if c.LogLocale == "" {
		c.LogLocale = "zh-CN"
	}
	if c.LogColor == "" {
		c.LogColor = "auto"
	}
	return nil
}

// NormalizeLanguages 将语言标签规范为 BCP 47 基础语言（如 zh-Hans → zh），去重保序。
func NormalizeLanguages(in []string) ([]string, error) {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, raw := range in {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		tag, err := language.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid language %q: %w", raw, err)
		}
		base, _ := tag.Base()
		code := base.String()
		if !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}
	return out, nil
}

// RootSeedURLs 返回根种子集合：ROOT_SEEDS ∪ 种子来源 URL。
func (c *Config) RootSeedURLs() []string {
	out := make([]string, 0, len(c.RootSeeds)+len(c.SeedSources))
	out = append(out, c.RootSeeds...)
	for _, s := range c.SeedSources {
		out = append(out, s.URL)
	}
	return out
}
