// Package api embeds the OpenAPI description served under /swagger.
package api

import _ "embed"

//go:embed openapi.json
var OpenAPI []byte
