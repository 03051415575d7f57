package classify

import (
	"strings"
	"testing"
)

func newTestClassifier(tb testing.TB) *Classifier {
	tb.Helper()
	return New(DefaultConfig(), nil)
}

// minifiedSample builds a realistically dense minified script of roughly the
// requested size.
func minifiedSample(size int) string {
	fragment := `var t=r(n);if(t.ok)return t.v;for(var i=0;i<t.n;i++){u[i]=t.get(i)||!0}`
	var sb strings.Builder
	for sb.Len() < size {
		sb.WriteString(fragment)
	}
	return sb.String()
}

// markupSample builds a plain HTML fragment of roughly lines lines that
// carries template expressions but no script.
func markupSample(lines int) string {
	var sb strings.Builder
	sb.WriteString("<section class=\"hero\">\n")
	for i := 0; i < lines; i++ {
		sb.WriteString("  <div class=\"row\">\n")
		sb.WriteString("    <p>{{ page.title }} with some copy text for readers</p>\n")
		sb.WriteString("  </div>\n")
	}
	sb.WriteString("</section>\n")
	return sb.String()
}

func TestIsExecutableCode_MinifiedBundle(t *testing.T) {
	c := newTestClassifier(t)
	if !c.IsExecutableCode(minifiedSample(200 * 1024)) {
		t.Error("a 200KB minified bundle must classify as code")
	}
}

func TestIsExecutableCode_MarkupWithExpressions(t *testing.T) {
	c := newTestClassifier(t)
	if c.IsExecutableCode(markupSample(50)) {
		t.Error("an HTML fragment with template expressions must classify as markup")
	}
}

func TestIsExecutableCode_StructuralWrappers(t *testing.T) {
	c := newTestClassifier(t)
	samples := []string{
		`(function () { var n = 0; return n; })();`,
		`!function(e){e.portico=1}(window);`,
		`;(function($){$.fn.widget=function(){};})(jQuery);`,
		`"use strict"; doWork();`,
		`// bundle preamble
var runtime = load();`,
		`module.exports = { render: render };`,
	}
	for _, s := range samples {
		if !c.IsExecutableCode(s) {
			t.Errorf("expected code verdict for %q", s)
		}
	}
}

func TestIsExecutableCode_ProseAndShortMarkup(t *testing.T) {
	c := newTestClassifier(t)
	samples := []string{
		"The primary function of this page is to return visitors to the home page.",
		`<b>if (you can read this) the page loaded</b>`,
		`<a href="/contact-us">Contact us</a>`,
		"",
		"   \n\t  ",
	}
	for _, s := range samples {
		if c.IsExecutableCode(s) {
			t.Errorf("expected markup verdict for %q", s)
		}
	}
}

func TestIsExecutableCode_LeadingCommentAloneIsNotCode(t *testing.T) {
	c := newTestClassifier(t)
	s := `/* decorative divider */ <hr class="fancy"><p>plain text continues here</p>`
	if c.IsExecutableCode(s) {
		t.Error("a lone leading comment on markup must not flip the verdict")
	}
}

func TestIsExecutableFile_Allowlist(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AlwaysCode = []string{"widget-embed.js"}
	c := New(cfg, nil)

	if !c.IsExecutableFile("snippets/Widget-Embed.JS", "<p>looks like markup</p>") {
		t.Error("allowlisted base name must classify as code regardless of content")
	}
	if !c.IsExecutableFile("vendor/react.production.min.js", "x") {
		t.Error(".min.js suffix must classify as code")
	}
	if c.IsExecutableFile("pages/About.en-US.webpage.copy.html", markupSample(5)) {
		t.Error("ordinary page file should fall through to the heuristics")
	}
}

func TestScore_Breakdown(t *testing.T) {
	c := newTestClassifier(t)
	b := c.Score(`var a = 1; var b = 2; map(x => y);`)

	if b.Signals["declaration-keyword"] != 2 {
		t.Errorf("expected 2 declaration-keyword hits, got %d", b.Signals["declaration-keyword"])
	}
	if b.Signals["arrow-function"] != 1 {
		t.Errorf("expected 1 arrow-function hit, got %d", b.Signals["arrow-function"])
	}
	if !b.Code {
		t.Error("a dense script snippet should score past the density threshold")
	}
	if b.Length == 0 || b.Density == 0 {
		t.Errorf("breakdown should carry length and density, got %+v", b)
	}
}

func TestScore_MarkupSignalsPullScoreDown(t *testing.T) {
	c := newTestClassifier(t)

	// One stray control-flow token inside substantial markup.
	text := markupSample(10) + `<span>if (only)</span>` + markupSample(10)
	b := c.Score(text)
	if b.Code {
		t.Errorf("markup signals should outweigh a stray indicator, breakdown: %+v", b)
	}
	if b.Signals["closing-tag"] == 0 {
		t.Error("expected closing-tag signal to fire")
	}
}

func TestScore_EmptyText(t *testing.T) {
	c := newTestClassifier(t)
	b := c.Score("")
	if b.Code || len(b.Signals) != 0 {
		t.Errorf("empty text must score empty, got %+v", b)
	}
}

func BenchmarkIsExecutableCode_Bundle(b *testing.B) {
	c := New(DefaultConfig(), nil)
	sample := minifiedSample(200 * 1024)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.IsExecutableCode(sample)
	}
}

func BenchmarkIsExecutableCode_Markup(b *testing.B) {
	c := New(DefaultConfig(), nil)
	sample := markupSample(50)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.IsExecutableCode(sample)
	}
}
