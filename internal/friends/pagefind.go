package friends

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"indie-blog-circles/internal/links"
	"indie-blog-circles/internal/page"
)

var (
	friendsPath = regexp.MustCompile(`(?i)^/(?:(?:about|page|pages)/)?(?:links?|friends?|flinks?|blogroll|youlian|友链|友情链接)(?:\.html?)?/?$`)
	friendsText = regexp.MustCompile(`(?i)^\s*(?:友链|友情链接|朋友们?|小伙伴|friends?|links|blogroll)\s*$`)
)

// FindFriendsPage 在首页导航中查找同站的友链页地址，找不到返回空串。
// 先按路径匹配（/links、/friends、/友链 等），再按链接文字匹配。
func FindFriendsPage(p *page.Page) string {
	var byPath, byText string
	p.Doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		abs := p.Resolve(href)
		if abs == "" || !links.SameSite(p.URL, abs) || links.Normalize(abs) == links.Normalize(p.URL) {
			return true
		}
		u, err := url.Parse(abs)
		if err != nil {
			return true
		}
		path := u.Path
		if dec, err := url.PathUnescape(path); err == nil {
			path = dec
		}
		if friendsPath.MatchString(path) {
			byPath = abs
			return false
		}
		if byText == "" && friendsText.MatchString(strings.TrimSpace(a.Text())) {
			byText = abs
		}
		return true
	})
	if byPath != "" {
		return byPath
	}
	return byText
}
