package links

import (
	"net/url"
	"strings"
)

// 社交网络、大平台、CDN、统计与评论服务等，均不是"友链博客"。
var defaultBlockedDomains = []string{
	// 社交与内容平台
	"github.com", "twitter.com", "x.com", "weibo.com", "zhihu.com",
	"bilibili.com", "youtube.com", "facebook.com", "instagram.com",
	"telegram.org", "t.me", "discord.com", "discord.gg", "linkedin.com",
	"reddit.com", "pinterest.com", "tiktok.com", "douyin.com",
	"xiaohongshu.com", "douban.com", "tieba.baidu.com", "mastodon.social",
	"medium.com", "substack.com", "threads.net", "bsky.app",
	// 搜索引擎
	"google.com", "baidu.com", "bing.com", "sogou.com", "so.com",
	// CDN 与静态资源
	"jsdelivr.net", "cloudflare.com", "unpkg.com", "cdnjs.com",
	"bootcdn.cn", "bootcss.com", "staticfile.org", "cloudflareinsights.com",
	"bootcdn.net", "loli.net", "googleapis.com", "gstatic.com",
	// 头像与图床
	"gravatar.com", "wp.com", "githubusercontent.com", "cravatar.cn",
	"weavatar.com", "qlogo.cn",
	// 打赏
	"afdian.com", "afdian.net", "paypal.com", "ko-fi.com", "patreon.com",
	// 备案
	"beian.miit.gov.cn", "icp.gov.cn", "mps.gov.cn", "beian.gov.cn",
	// 云服务
	"amazonaws.com", "aliyuncs.com", "qcloud.com", "tencentcloud.com",
	"azure.com", "cloudfront.net", "akamai.com",
	// 统计
	"google-analytics.com", "googletagmanager.com", "umami.is",
	"plausible.io", "clarity.ms", "hotjar.com", "cnzz.com", "busuanzi.ibruce.info",
	// 问卷
	"wjx.cn", "wenjuan.com", "typeform.com", "jotform.com",
	// 代码托管与问答
	"gitee.com", "gitlab.com", "bitbucket.org", "codepen.io", "jsfiddle.net",
	"stackoverflow.com", "stackexchange.com", "csdn.net", "jianshu.com",
	// 评论系统
	"giscus.app", "utteranc.es", "disqus.com", "disquscdn.com",
	// 其他
	"geetest.com", "recaptcha.net", "hcaptcha.com",
	"browsehappy.com", "creativecommons.org", "opensource.org",
	"dogecloud.com", "qiniu.com", "upyun.com",
	"apple.com", "microsoft.com", "mozilla.org",
	"wikipedia.org", "archive.org",
}

var assetExtensions = []string{
	".js", ".css", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
	".woff", ".woff2", ".ttf", ".xml", ".json", ".rss", ".opml", ".pdf", ".zip",
}

// Blocklist 由精确域名与后缀组成，命中后缀的子域同样被屏蔽。
type Blocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewBlocklist 解析模式：example.com（自身及子域）、*.example.com / .example.com（仅子域）。
func NewBlocklist(patterns []string) *Blocklist {
	b := &Blocklist{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		v := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case v == "":
		case strings.HasPrefix(v, "*."):
			b.addSuffix(strings.TrimPrefix(v, "*."))
		case strings.HasPrefix(v, "."):
			b.addSuffix(strings.TrimPrefix(v, "."))
		default:
			b.exact[v] = struct{}{}
		}
	}
	return b
}

// DefaultBlocklist 返回内置屏蔽名单，可追加配置中的额外域名。
func DefaultBlocklist(extra ...string) *Blocklist {
	all := make([]string, 0, len(defaultBlockedDomains)+len(extra))
	all = append(all, defaultBlockedDomains...)
	all = append(all, extra...)
	return NewBlocklist(all)
}

func (b *Blocklist) addSuffix(s string) {
	if s == "" {
		return
	}
	for _, e := range b.suffixes {
		if e == s {
			return
		}
	}
	b.suffixes = append(b.suffixes, s)
}

// IsBlocked 判断主机名是否在屏蔽名单中。
func (b *Blocklist) IsBlocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimPrefix(strings.TrimSpace(strings.ToLower(host)), "www.")
	if host == "" {
		return false
	}
	if _, ok := b.exact[host]; ok {
		return true
	}
	for d := range b.exact {
		if strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	for _, s := range b.suffixes {
		if strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}

// IsCandidate 判断 href（相对 pageURL）是否可能是一个外部独立博客：
// 拒绝片段/脚本/邮件链接、非 http(s)、同站链接、屏蔽域名与静态资源。
// 返回绝对化后的链接。
func (b *Blocklist) IsCandidate(pageURL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	abs := Resolve(pageURL, href)
	if abs == "" {
		return "", false
	}
	u, err := url.Parse(abs)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if pageURL != "" && SameSite(pageURL, abs) {
		return "", false
	}
	if b.IsBlocked(u.Hostname()) {
		return "", false
	}
	p := strings.ToLower(u.Path)
	for _, ext := range assetExtensions {
		if strings.HasSuffix(p, ext) {
			return "", false
		}
	}
	return abs, true
}
