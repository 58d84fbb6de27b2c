package httpapi

import (
	"net/http"

	"github.com/tokonoko12/playdeck/internal/httpjson"
)

// handleOpenAPI renvoie une spec OpenAPI minimale (placeholder) pour cadrer l'API.
// Elle sera enrichie au fil des jalons.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	jsonOK := func(schemaRef string) map[string]any {
		return map[string]any{
			"description": "OK",
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": schemaRef},
				},
			},
		}
	}

	jsonErr := map[string]any{
		"description": "Error",
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{"$ref": "#/components/schemas/Error"},
			},
		},
	}

	spec := map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "Playdeck API",
			"version": "v1",
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"OpenAPIDocument": map[string]any{
					"type":                 "object",
					"additionalProperties": true,
				},
				"MediaKind": map[string]any{
					"type": "string",
					"enum": []any{"movie", "series"},
				},
				"PlayerPhase": map[string]any{
					"type": "string",
					"enum": []any{"uninitialized", "initializing", "ready", "playing", "paused", "ended", "error"},
				},
				"Error": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error": map[string]any{"type": "string"},
					},
					"required": []any{"error"},
				},
				"Session": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":     map[string]any{"type": "string"},
						"target": map[string]any{"type": "object", "additionalProperties": true},
						"state":  map[string]any{"type": "object", "additionalProperties": true},
					},
					"required": []any{"id", "target", "state"},
				},
				"CastDevice": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":   map[string]any{"type": "string"},
						"name": map[string]any{"type": "string"},
					},
					"required": []any{"id", "name"},
				},
			},
		},
		"paths": map[string]any{
			"/api/v1/health": map[string]any{
				"get": map[string]any{
					"summary":   "Liveness check",
					"responses": map[string]any{"200": jsonOK("#/components/schemas/OpenAPIDocument")},
				},
			},
			"/api/v1/version": map[string]any{
				"get": map[string]any{
					"summary":   "Build information",
					"responses": map[string]any{"200": jsonOK("#/components/schemas/OpenAPIDocument")},
				},
			},
			"/api/v1/devices": map[string]any{
				"get": map[string]any{
					"summary":   "Discover cast receivers",
					"responses": map[string]any{"200": jsonOK("#/components/schemas/CastDevice"), "502": jsonErr},
				},
			},
			"/api/v1/sessions": map[string]any{
				"post": map[string]any{
					"summary":   "Create a playback session",
					"responses": map[string]any{"201": jsonOK("#/components/schemas/Session"), "400": jsonErr, "429": jsonErr},
				},
				"get": map[string]any{
					"summary":   "List active sessions",
					"responses": map[string]any{"200": jsonOK("#/components/schemas/Session")},
				},
			},
			"/api/v1/sessions/capacity": map[string]any{
				"get": map[string]any{
					"summary": "Concurrent session ceiling",
				},
				"put": map[string]any{
					"summary": "Adjust the concurrent session ceiling",
				},
			},
			"/api/v1/sessions/{id}": map[string]any{
				"get": map[string]any{
					"summary":   "Session state",
					"responses": map[string]any{"200": jsonOK("#/components/schemas/Session"), "404": jsonErr},
				},
				"delete": map[string]any{
					"summary":   "Close a session",
					"responses": map[string]any{"204": map[string]any{"description": "No Content"}},
				},
			},
			"/api/v1/events": map[string]any{
				"get": map[string]any{
					"summary": "Server-sent events stream (session.state, session.finished, session.error)",
					"responses": map[string]any{
						"200": map[string]any{"description": "text/event-stream"},
					},
				},
			},
		},
	}

	httpjson.Write(w, http.StatusOK, spec)
}
