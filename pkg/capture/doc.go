/*
Package capture records proxied HTTP exchanges so they can be inspected later
and promoted into mock rules.

Transactions live in SQLite and are accessed through prepared statements.
Header maps are serialized into JSON text columns. Recording sits on the
forwarding hot path, so the optional retention sweep after each insert logs
failures instead of returning them.

ToRule converts a recorded transaction into a rule the fixture store accepts.
Volatile query parameters such as cache busters are dropped during the
conversion, because carrying them over would make the rule unmatchable on
replay.
*/
package capture
