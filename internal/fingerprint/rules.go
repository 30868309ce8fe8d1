package fingerprint

import "regexp"

// Kind 为规则匹配的信号来源。
type Kind string

const (
	KindMeta    Kind = "meta"    // <meta name="generator">
	KindComment Kind = "comment" // HTML 注释
	KindPath    Kind = "path"    // href/src 中的路径
	KindClass   Kind = "class"   // class / id / 自定义元素名
	KindScript  Kind = "script"  // <script src>
)

// 各类信号的默认置信度。
const (
	confMeta    = 0.95
	confComment = 0.85
	confScript  = 0.8
	confPath    = 0.75
	confClass   = 0.7
)

type rule struct {
	kind Kind
	re   *regexp.Regexp
	conf float64
}

func r(kind Kind, pattern string) rule {
	conf := map[Kind]float64{
		KindMeta: confMeta, KindComment: confComment, KindScript: confScript,
		KindPath: confPath, KindClass: confClass,
	}[kind]
	return rule{kind: kind, re: regexp.MustCompile(pattern), conf: conf}
}

type generator struct {
	name  string
	rules []rule
}

// generators 的声明顺序即平局时的优先顺序。
var generators = []generator{
	{"hexo", []rule{
		r(KindMeta, `(?i)\bhexo\b`),
		r(KindComment, `(?i)powered by.*hexo`),
		r(KindScript, `(?i)hexo-`),
		r(KindPath, `(?i)/lib/hexo|hexo-theme-`),
	}},
	{"hugo", []rule{
		r(KindMeta, `(?i)^hugo\b`),
		r(KindComment, `(?i)\bhugo\b`),
		r(KindPath, `(?i)hugo_stats\.json|hugo-theme-`),
	}},
	{"astro", []rule{
		r(KindMeta, `(?i)^astro\b`),
		r(KindPath, `/_astro/`),
		r(KindClass, `^astro-(island|slot)$`),
	}},
	{"vitepress", []rule{
		r(KindMeta, `(?i)vitepress`),
		r(KindScript, `(?i)@vitepress|/vitepress/`),
		r(KindClass, `^VP(Content|Doc|Nav|Sidebar)$`),
	}},
	{"vuepress", []rule{
		r(KindMeta, `(?i)vuepress`),
		r(KindClass, `^(theme-container|vuepress-.+)$`),
	}},
	{"gatsby", []rule{
		r(KindMeta, `(?i)gatsby`),
		r(KindClass, `^___gatsby$`),
		r(KindPath, `/page-data/`),
	}},
	{"nextjs", []rule{
		r(KindMeta, `(?i)next\.js`),
		r(KindScript, `/_next/`),
		r(KindClass, `^(__next|__NEXT_DATA__)$`),
	}},
	{"nuxt", []rule{
		r(KindMeta, `(?i)nuxt`),
		r(KindScript, `/_nuxt/`),
		r(KindClass, `^__nuxt$`),
	}},
	{"jekyll", []rule{
		r(KindMeta, `(?i)jekyll`),
		r(KindComment, `(?i)jekyll`),
	}},
	{"wordpress", []rule{
		r(KindMeta, `(?i)wordpress`),
		r(KindScript, `/wp-(includes|content)/`),
		r(KindPath, `/wp-(content|includes)/|/wp-json/`),
	}},
	{"typecho", []rule{
		r(KindMeta, `(?i)typecho`),
		r(KindComment, `(?i)typecho`),
		r(KindPath, `/usr/(themes|plugins)/`),
	}},
	{"ghost", []rule{
		r(KindMeta, `(?i)^ghost\b`),
		r(KindPath, `/assets/built/|/ghost/api/`),
		r(KindClass, `^gh-(head|canvas|content|navigation)$`),
	}},
	{"gridea", []rule{
		r(KindMeta, `(?i)gridea`),
		r(KindComment, `(?i)gridea`),
	}},
	{"halo", []rule{
		r(KindMeta, `(?i)^halo\b`),
		r(KindComment, `(?i)powered by.*halo`),
		r(KindPath, `/themes/theme-[a-zA-Z0-9_-]+/`),
	}},
	{"11ty", []rule{
		r(KindMeta, `(?i)eleventy|11ty`),
		r(KindComment, `(?i)eleventy|11ty`),
	}},
	{"zola", []rule{
		r(KindMeta, `(?i)zola`),
		r(KindComment, `(?i)powered by.*zola`),
	}},
	{"pelican", []rule{
		r(KindMeta, `(?i)pelican`),
		r(KindComment, `(?i)powered by.*pelican`),
	}},
	{"mkdocs", []rule{
		r(KindMeta, `(?i)mkdocs`),
		r(KindClass, `^md-(header|container|main)$`),
	}},
	{"docusaurus", []rule{
		r(KindMeta, `(?i)docusaurus`),
		r(KindClass, `^__docusaurus$`),
	}},
	{"docsify", []rule{
		r(KindScript, `(?i)docsify`),
	}},
	{"notion", []rule{
		r(KindScript, `(?i)super\.so|notion\.site`),
		r(KindClass, `^notion-(app|page-content|root)$`),
	}},
}

type themeRule struct {
	theme string // 为空时取正则第一个分组
	rule
}

func t(theme string, kind Kind, pattern string) themeRule {
	return themeRule{theme: theme, rule: r(kind, pattern)}
}

// themes 按生成器划分；主题只在识别出生成器后才检测。
var themes = map[string][]themeRule{
	"hexo": {
		t("butterfly", KindPath, `(?i)hexo-theme-butterfly|/butterfly/`),
		t("butterfly", KindClass, `^(rightside|web_bg)$`),
		t("next", KindScript, `(?i)next-boot|/js/next-`),
		t("fluid", KindPath, `(?i)hexo-theme-fluid`),
		t("fluid", KindClass, `^fluid-(header|footer)$`),
		t("anzhiyu", KindPath, `(?i)anzhiyu`),
		t("anzhiyu", KindClass, `^anzhiyu-`),
		t("stellar", KindPath, `(?i)hexo-theme-stellar|/stellar/`),
		t("icarus", KindPath, `(?i)hexo-theme-icarus|/icarus/`),
		t("matery", KindPath, `(?i)matery`),
		t("volantis", KindPath, `(?i)volantis`),
		t("redefine", KindPath, `(?i)redefine`),
		t("keep", KindPath, `(?i)hexo-theme-keep`),
		t("shoka", KindPath, `(?i)shoka`),
	},
	"hugo": {
		t("papermod", KindPath, `(?i)papermod`),
		t("papermod", KindClass, `^(post-entry|home-info|first-entry)$`),
		t("stack", KindPath, `(?i)hugo-theme-stack`),
		t("stack", KindClass, `^(article-list--compact|left-sidebar)$`),
		t("loveit", KindPath, `(?i)loveit`),
		t("fixit", KindPath, `(?i)fixit`),
		t("even", KindPath, `(?i)hugo-theme-even`),
	},
	"wordpress": {
		{rule: rule{kind: KindPath, re: regexp.MustCompile(`/wp-content/themes/([a-zA-Z0-9_-]+)/`), conf: 0.9}},
	},
	"typecho": {
		{rule: rule{kind: KindPath, re: regexp.MustCompile(`/usr/themes/([a-zA-Z0-9_-]+)/`), conf: 0.9}},
	},
	"halo": {
		{rule: rule{kind: KindPath, re: regexp.MustCompile(`/themes/theme-([a-zA-Z0-9_-]+)/`), conf: 0.9}},
	},
	"ghost": {
		t("casper", KindPath, `(?i)casper`),
		t("casper", KindClass, `^casper$`),
	},
}

// genericThemes 对所有生成器生效，置信度低于生成器专属规则。
var genericThemes = []themeRule{
	{rule: rule{kind: KindComment, re: regexp.MustCompile(`(?i)(?:theme|主题)\s*[:：]\s*["']?([a-zA-Z0-9_-]+)`), conf: 0.6}},
	{rule: rule{kind: KindPath, re: regexp.MustCompile(`/themes?/([a-zA-Z0-9_-]+)/`), conf: 0.5}},
}

// 主题名误报。
var themeStopwords = map[string]bool{
	"the": true, "this": true, "a": true, "an": true, "color": true,
	"dark": true, "light": true, "default": true, "auto": true,
}

type commentSystem struct {
	name string
	re   *regexp.Regexp
}

// commentSystems 首个命中即为结果。
var commentSystems = []commentSystem{
	{"giscus", regexp.MustCompile(`(?i)giscus\.app|class=["']giscus`)},
	{"waline", regexp.MustCompile(`(?i)waline`)},
	{"twikoo", regexp.MustCompile(`(?i)twikoo`)},
	{"artalk", regexp.MustCompile(`(?i)artalk`)},
	{"disqus", regexp.MustCompile(`(?i)disqus\.com|disqus_shortname|disqus_thread`)},
	{"utterances", regexp.MustCompile(`(?i)utteranc\.es`)},
	{"gitalk", regexp.MustCompile(`(?i)gitalk`)},
	{"valine", regexp.MustCompile(`(?i)valine`)},
	{"cusdis", regexp.MustCompile(`(?i)cusdis`)},
	{"isso", regexp.MustCompile(`(?i)data-isso|/isso/|isso\.js`)},
	{"remark42", regexp.MustCompile(`(?i)remark42|remark_config`)},
	{"commento", regexp.MustCompile(`(?i)commento\.io|commento\.js`)},
}
