package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masahif/packfetch/internal/model"
)

const seedHTML = `
<!DOCTYPE html>
<html>
<body>
<div id="article-body">
	<p>Intro 1</p>
	<p>Intro 2 <a href="/ignored-head">head link</a></p>
	<p>Intro 3</p>
	<p>Intro 4</p>
	<p>Intro 5</p>
	<p>Intro 6</p>
	<p><a href="/news/drum-loops">Drum loops</a> and <a href="/news/second">second</a></p>
	<p>No link here</p>
	<p><a href="https://cdn.example.org/news/synths">Synths</a></p>
	<p><a href="#top">Back to top</a></p>
	<p><a href="mailto:editor@example.com">Contact</a></p>
	<p><a href="/ignored-tail">footer</a></p>
</div>
</body>
</html>
`

const packHTML = `
<html>
<body>
<div class="text-copy bodyCopy auto">
	<p><a href="/packs/drums.zip">Drum Loops (45.3 MB)</a></p>
	<p><a href="https://files.example.org/nick's-loops.zip">Nick's Loops (20MB)</a></p>
	<p><a href="/packs/readme.pdf">Read me</a></p>
	<p>Plain text</p>
	<p><a href="/packs/vocals.zip">Free Vocal Chops</a> <a href="/packs/other.zip">other</a></p>
</div>
<div class="sidebar"><p><a href="/packs/sidebar.zip">Not in body</a></p></div>
</body>
</html>
`

func TestPageLinks(t *testing.T) {
	e := NewSelectorExtractor(Rules{})

	links, err := e.PageLinks("https://example.com/news/free-samples", []byte(seedHTML))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://example.com/news/drum-loops",
		"https://cdn.example.org/news/synths",
	}, links)
}

func TestPageLinksTooFewParagraphs(t *testing.T) {
	e := NewSelectorExtractor(Rules{})

	body := `<div id="article-body"><p><a href="/a">a</a></p><p><a href="/b">b</a></p></div>`
	links, err := e.PageLinks("https://example.com/", []byte(body))
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestPageLinksCustomRules(t *testing.T) {
	e := NewSelectorExtractor(Rules{SeedSelector: "ul.index li"})

	body := `<ul class="index"><li><a href="one">1</a></li><li><a href="two">2</a></li></ul>`
	links, err := e.PageLinks("https://example.com/dir/", []byte(body))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/dir/one", "https://example.com/dir/two"}, links)
}

func TestItems(t *testing.T) {
	e := NewSelectorExtractor(Rules{})
	page := "https://example.com/news/drum-loops"

	items, err := e.Items(page, []byte(packHTML))
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "https://example.com/packs/drums.zip", items[0].URL())
	assert.Equal(t, "Drum Loops (45.3 MB)", items[0].Title())
	assert.Equal(t, "drums.zip", items[0].FileName())
	assert.Equal(t, "45.3 MB", items[0].DeclaredSize())
	assert.Equal(t, page, items[0].SourcePage())

	assert.Equal(t, "20MB", items[1].DeclaredSize())

	assert.Equal(t, "vocals.zip", items[2].FileName())
	assert.Equal(t, model.UnknownSize, items[2].DeclaredSize())
}

func TestItemsMissingMarkup(t *testing.T) {
	e := NewSelectorExtractor(Rules{})

	items, err := e.Items("https://example.com/", []byte("<html><body><p>nothing</p></body></html>"))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestInvalidPageURL(t *testing.T) {
	e := NewSelectorExtractor(Rules{})

	_, err := e.Items("://bad", []byte(packHTML))
	assert.Error(t, err)

	_, err = e.PageLinks("://bad", []byte(seedHTML))
	assert.Error(t, err)
}
