//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// apiTemplate is the OpenAPI document served at /swagger/doc.json. It covers
// the public endpoints; regenerate with swag init when handlers change.
const apiTemplate = `{
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "basePath": "{{.BasePath}}",
    "paths": {
        "/v1/infer": {
            "post": {
                "consumes": ["application/json", "application/octet-stream"],
                "produces": ["application/json", "application/octet-stream"],
                "tags": ["inference"],
                "summary": "Run one sample through the batcher",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.InferRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.InferResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "408": {"description": "Request Timeout", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Ring and batch state",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}
            }
        }
    },
    "definitions": {
        "types.InferRequest": {
            "type": "object",
            "properties": {
                "input": {"type": "array", "items": {"type": "number"}},
                "data": {"type": "string", "format": "base64"}
            }
        },
        "types.InferResponse": {
            "type": "object",
            "properties": {
                "output": {"type": "array", "items": {"type": "number"}},
                "data": {"type": "string", "format": "base64"},
                "batch_size": {"type": "integer"},
                "slot": {"type": "integer"},
                "generation": {"type": "integer"}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}, "code": {"type": "integer"}}
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "state": {"type": "string"},
                "input_shape": {"type": "string"},
                "output_shape": {"type": "string"},
                "rings": {"type": "array", "items": {"type": "object"}},
                "uptime_seconds": {"type": "integer"},
                "server_time_unix": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "batchd API",
	Description:      "HTTP API for micro-batched tensor inference.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  apiTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// MountSwagger serves the Swagger UI under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
