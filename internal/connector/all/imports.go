// Package all registers every built-in connector.
package all

import (
	_ "daybook/internal/connector/api"
	_ "daybook/internal/connector/file"
	_ "daybook/internal/connector/mysql"
)
