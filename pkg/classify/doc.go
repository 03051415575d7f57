/*
Package classify decides whether a piece of resolved content is executable
code rather than renderable markup.

Content storages regularly hold raw JavaScript (React bundles, analytics
shims, inline widgets) in the same tables as HTML fragments, and feeding such
sources through a template engine corrupts them. No single check is reliable,
so the classifier combines independent weighted signals: structural patterns
near the start of the text, indicator density normalized per 1000 characters
so longer content needs proportionally more evidence, and negative-weight
markup signals. Thresholds and the always-code file allowlist are
configuration, and every signal's contribution is exposed for inspection.

When in doubt the classifier leans toward code: serving markup verbatim is a
cosmetic miss, while rendering a script breaks it.
*/
package classify
