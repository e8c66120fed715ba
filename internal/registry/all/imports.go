// Package all wires every built-in registry backend into the registry
// factory. Import it for side effects:
//
//	import _ "daybook/internal/registry/all"
//
// after which registry.New accepts the kinds dynamo, mssql, mysql,
// postgres and sqlite.
package all

import (
	_ "daybook/internal/registry/dynamo"
	_ "daybook/internal/registry/mssql"
	_ "daybook/internal/registry/mysql"
	_ "daybook/internal/registry/postgres"
	_ "daybook/internal/registry/sqlite"
)
