package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cogniflow/agentrt/pkg/taxonomy"
)

// respondError maps an error to the HTTP status spec.md §6/§7 assigns its
// taxonomy.Kind and writes a JSON error body.
func respondError(c *gin.Context, err error) {
	kind := taxonomy.ClassifyOf(err)
	status := taxonomy.HTTPStatus(kind)
	if status >= 500 {
		slog.Error("api: request failed", "kind", kind, "error", err)
	}
	c.JSON(status, errorResponse{Error: err.Error(), Kind: string(kind)})
}

// badRequest writes a 400 for a malformed request that never reached a
// component capable of classifying it (e.g. unparsable JSON body).
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: message, Kind: string(taxonomy.SchemaViolation)})
}

// notFound writes a 404 for a named entity this handler itself resolved
// to be missing, without round-tripping through a taxonomy error.
func notFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, errorResponse{Error: message, Kind: string(taxonomy.NotFound)})
}
