// Package all registers every storage backend with the factory.
// Import for side effects from the binary entry point; config selects which
// backend actually runs.
package all

import (
	_ "postetl/internal/storage/mssql"
	_ "postetl/internal/storage/postgres"
	_ "postetl/internal/storage/sqlite"
)
