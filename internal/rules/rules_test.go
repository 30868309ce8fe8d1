package rules

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndLookup(t *testing.T) {
	r, err := Parse([]byte(`
default:
  friends_page:
    item: ".friend"
    name: "."
    link: "a@href"
Butterfly:
  friends_page:
    item: ".flink-list-item"
    name: ".flink-item-name||."
    link: "a@href"
`))
	require.NoError(t, err)

	p, ok := r.Lookup("butterfly")
	require.True(t, ok)
	assert.Equal(t, ".flink-list-item", p.FriendsPage.Item)

	_, ok = r.Lookup("stellar")
	assert.False(t, ok)

	p, ok = r.GetPreset("stellar")
	require.True(t, ok)
	assert.Equal(t, ".friend", p.FriendsPage.Item)

	var nilRules *Rules
	_, ok = nilRules.GetPreset("x")
	assert.False(t, ok)
}

func TestValue_FallbackAndAttr(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<ul><li class="it" data-href="/x"><a class="nm2" href="/ok">NM</a><span class="nm1">X</span></li></ul>`))
	require.NoError(t, err)
	item := doc.Find(".it").First()

	assert.Equal(t, "X", Value(item, ".nm0||.nm1||."))
	assert.Equal(t, "/ok", Value(item, "a@href||@data-href"))
	assert.Equal(t, "/x", Value(item, "b@href||@data-href"))
	assert.Equal(t, "", Value(item, ".missing"))
}
