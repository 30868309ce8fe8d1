package lang

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"indie-blog-circles/internal/page"
)

func TestCanonical(t *testing.T) {
	assert.Equal(t, "zh", Canonical("zh-CN"))
	assert.Equal(t, "zh", Canonical("zh-Hans"))
	assert.Equal(t, "en", Canonical(" en-US "))
	assert.Empty(t, Canonical(""))
	assert.Empty(t, Canonical("not a tag!"))
	assert.Empty(t, Canonical("und"))
}

func TestHeuristicText(t *testing.T) {
	h := Heuristic{}
	assert.Equal(t, "zh", h.Text("今天折腾了一下博客的友情链接页面，顺便把主题升级到了最新版本。"))
	assert.Equal(t, "ja", h.Text("今日はブログのテーマを更新しました。とても楽しかったです。"))
	assert.Equal(t, "ko", h.Text("오늘은 블로그 테마를 업데이트했습니다. 정말 재미있었어요."))
	assert.Equal(t, "en", h.Text("Today I rebuilt the blogroll page and upgraded the theme."))
	assert.Empty(t, h.Text("hi 👋"))
	assert.Empty(t, h.Text(strings.Repeat("1234 ", 50)))
}

func TestHeuristicSite(t *testing.T) {
	h := Heuristic{}
	assert.Equal(t, []string{"zh"}, h.Site(page.Parse(`<html lang="zh-CN"><body>Hello world, this is english text</body></html>`, "https://a.dev")))
	assert.Equal(t, []string{"en"}, h.Site(page.Parse(`<html><body><p>Notes on distributed systems and compilers.</p></body></html>`, "https://a.dev")))
	assert.Nil(t, h.Site(page.Parse(`<html><body>42</body></html>`, "https://a.dev")))
}

func TestMerge(t *testing.T) {
	assert.Equal(t, []string{"zh", "en"}, Merge([]string{"zh"}, []string{"en", "zh", ""}))
	assert.Nil(t, Merge(nil, []string{}))
}
