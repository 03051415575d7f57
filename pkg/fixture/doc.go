/*
Package fixture stores recorded request/response rules and matches inbound
requests against them.

Rules live in a single JSON document that is rewritten wholesale on every
mutation, so a crash can never leave a half-written rule set behind. The
active set is kept sorted by priority (descending) with newer rules first
among equals, and the first enabled rule that structurally matches a request
wins.

Matching compares the HTTP method, the path (literal segments, ":name"
parameters and "*" wildcards) and any recorded query constraints. Keys such
as "$select" are compared as comma-separated field sets rather than verbatim
strings, because recorded query strings rarely survive replay byte for byte.
*/
package fixture
