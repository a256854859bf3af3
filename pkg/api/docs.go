// Package api provides the HTTP API for specsync.
//
//	@title						Specsync API
//	@version					1.0
//	@description				Keeps OpenAPI documents synchronized with the code that implements them.
//	@description				Projects pair a source OpenAPI document with a git repository; every run
//	@description				annotates the changed operations using code-aware retrieval.
//
//	@contact.name				ethPandaOps
//	@contact.url				https://github.com/ethpandaops/specsync
//
//	@license.name				MIT
//	@license.url				https://github.com/ethpandaops/specsync/blob/main/LICENSE
//
//	@host						localhost:9090
//	@BasePath					/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Project bearer token. Format: "Bearer {token}"
//
//	@tag.name					projects
//	@tag.description			Project registration and management
//
//	@tag.name					tasks
//	@tag.description			Pipeline runs
//
//	@tag.name					documents
//	@tag.description			Generated OpenAPI documents
//
//	@tag.name					system
//	@tag.description			System health and status
//
//	@tag.name					websocket
//	@tag.description			Real-time task updates
package api

//go:generate swag init --generalInfo docs.go --dir . --output docs --outputTypes go --parseDependency
