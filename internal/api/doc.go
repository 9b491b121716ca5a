// Package api provides the savedb REST API.
//
//	@title			savedb API
//	@version		1.0
//	@description	On-demand PostgreSQL backup service
//	@BasePath		/api/v1
package api
