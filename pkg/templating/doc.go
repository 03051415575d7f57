/*
Package templating renders portal content through a curly-brace template
engine wrapped with the platform's include semantics.

Include and snippet tokens are substituted by a recursive preprocessor
before the engine parses anything, because the platform's include directive
resolves against two content storages with language preference rules the
engine's native include cannot express. Expansion is depth-bounded, so
cyclic include graphs terminate with the remaining tokens visible in the
output. After expansion the text is classified, and anything that looks like
executable code is returned verbatim rather than fed to the engine.

Render failures are typed (SyntaxError, RuntimeError) and always come back
alongside the preprocessed text, so callers can log the diagnostic and serve
a partial render instead of failing the response.
*/
package templating
