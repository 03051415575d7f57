/*
Package content resolves pages, web templates, and content snippets from an
on-disk site export.

It understands the export's fixed directory and file-name conventions, applies
language fallback when a requested variant is missing, and caches successful
resolutions in a per-resolver cache that can be invalidated wholesale. A miss
is reported through the ErrNotFound sentinel and is never fatal; callers
decide how to surface it.
*/
package content
