package classify

import "regexp"

// signal is one independent piece of evidence about the nature of a text.
// Structural signals score their weight once when present, density signals
// score weight multiplied by occurrence count, and markup signals carry
// negative weight to pull recognizable markup back below the threshold.
type signal struct {
	name   string
	weight float64
	re     *regexp.Regexp
}

// structuralSignals look at the shape of the text, mostly near its start.
// They catch the standard framings of shipped JavaScript: wrapper IIFEs,
// strict-mode pragmas, module boilerplate, top-level declarations.
var structuralSignals = []signal{
	{"leading-comment", 1.0, regexp.MustCompile(`^\s*(?:/\*|//)`)},
	{"leading-function", 2.0, regexp.MustCompile(`^\s*[;!]?\s*\(?\s*function\b`)},
	{"use-strict", 2.0, regexp.MustCompile(`["']use strict["']\s*;`)},
	{"top-level-declaration", 1.0, regexp.MustCompile(`(?m)^\s*(?:var|let|const|function|class)\s+[A-Za-z_$]`)},
	{"module-boilerplate", 2.0, regexp.MustCompile(`module\.exports|\bexports\.[A-Za-z_$]|\brequire\(|\bdefine\(|typeof exports|typeof module`)},
}

// densitySignals count constructs that occur throughout real scripts.
// Individually weak, they become decisive in quantity.
var densitySignals = []signal{
	{"function-literal", 1.0, regexp.MustCompile(`\bfunction\s*[A-Za-z0-9_$]*\s*\(`)},
	{"arrow-function", 1.0, regexp.MustCompile(`=>`)},
	{"control-flow", 0.5, regexp.MustCompile(`\b(?:if|for|while|switch|catch)\s*\(`)},
	{"return-statement", 0.5, regexp.MustCompile(`\breturn\b`)},
	{"declaration-keyword", 0.5, regexp.MustCompile(`\b(?:var|let|const)\s+[A-Za-z_$]`)},
	{"prototype-access", 1.0, regexp.MustCompile(`\.prototype\.`)},
	{"constructor-call", 0.5, regexp.MustCompile(`\bnew\s+[A-Z][A-Za-z0-9_$]*\s*\(`)},
	{"typeof-operator", 0.5, regexp.MustCompile(`\btypeof\s`)},
	{"minified-artifact", 1.0, regexp.MustCompile(`!0|!1|void 0`)},
}

// markupSignals are evidence against code: markup that happens to carry a few
// script-looking tokens should still render.
var markupSignals = []signal{
	{"closing-tag", -0.5, regexp.MustCompile(`</[A-Za-z][A-Za-z0-9-]*\s*>`)},
	{"template-expression", -0.5, regexp.MustCompile(`\{\{|\{%`)},
}
