package markup

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"**Bold** and `/a/f2`", "<b>Bold</b> and <code>/a/f2</code>"},
		{"a < b & c", "a &lt; b &amp; c"},
		{"[TG Drive](https://x.io/a#b)", `<a href="https://x.io/a#b">TG Drive</a>`},
		{"No folder found with name 'x'", "No folder found with name &#39;x&#39;"},
		{"**Commands:**\n/set_folder", "<b>Commands:</b>\n/set_folder"},
		{"2 ** 3 and a ` alone", "2 ** 3 and a ` alone"},
		{"[not a link] (x)", "[not a link] (x)"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Render(tc.in), tc.in)
	}
}

func TestEscapedValuesRenderLiterally(t *testing.T) {
	cases := []struct {
		name, want string
	}{
		{"**draft**.pdf", "<code>**draft**.pdf</code> **draft**.pdf"},
		{"a`b.txt", "<code>a`b.txt</code> a`b.txt"},
		{`back\slash`, `<code>back\slash</code> back\slash`},
		{"[x](http://y)", "<code>[x](http://y)</code> [x](http://y)"},
		{"<i>&", "<code>&lt;i&gt;&amp;</code> &lt;i&gt;&amp;"},
	}
	for _, tc := range cases {
		v := Escape(tc.name)
		got := Render(fmt.Sprintf("`%s` %s", v, v))
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestEscapeInsideBold(t *testing.T) {
	got := Render("**Name: " + Escape("a*b") + "**")
	assert.Equal(t, "<b>Name: a*b</b>", got)
}
