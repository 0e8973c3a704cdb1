// Package migrations carries the SQL schema migrations compiled into the migrate binary.
package migrations

import "embed"

// Files holds every {version}_{name}.up.sql / .down.sql pair in this directory.
//
//go:embed *.sql
var Files embed.FS
