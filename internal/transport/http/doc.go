// Package http contains the HTTP handlers for the sheetvault API.
//
// Handlers follow a uniform shape: a struct holding its collaborators
// and a component logger, a constructor, and a Routes method returning
// a chi.Router that the application mounts under /api. Responses are
// rendered with go-chi/render; errors use the RFC 7807 problem
// documents from the middleware package.
package http
