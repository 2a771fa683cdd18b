// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) causes the init functions of each concrete backend to run, which
// in turn register their factories and DDL renderers with the storage
// package. A binary that should support only a subset of backends can blank
// import the individual backend packages instead.
package all

import (
	_ "cleanse/internal/storage/mssql"
	_ "cleanse/internal/storage/postgres"
	_ "cleanse/internal/storage/sqlite"
)
