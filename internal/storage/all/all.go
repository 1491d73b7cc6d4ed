// Package all registers every storage backend. Blank-import it from a main
// package to make the configured kinds available without naming them.
package all

import (
	_ "serpetl/internal/storage/mssql"
	_ "serpetl/internal/storage/postgres"
	_ "serpetl/internal/storage/sqlite"
)
