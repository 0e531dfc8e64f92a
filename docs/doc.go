// Package docs provides generated OpenAPI documentation.
//
// Nesach API
//
//	@title			Nesach API
//	@version		1.0
//	@description	Land-registry document extraction API for managing sessions, jobs, and staged LLM processing.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/shamayhq/nesach
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -d ../ -g docs/doc.go -o ./swagger --parseDependency --parseInternal
