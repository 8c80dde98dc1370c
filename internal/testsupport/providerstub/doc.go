// Package providerstub hosts a deterministic fake of the media-hosting
// backend for handler and wiring tests. It serves the direct-upload, upload
// lookup, asset lookup, and asset delete endpoints without touching the
// network, and records every call so tests can assert on traffic.
package providerstub
