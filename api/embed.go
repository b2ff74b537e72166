// Package api holds the OpenAPI document served at /docs.
package api

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte
