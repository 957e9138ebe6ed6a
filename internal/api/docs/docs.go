// Package docs holds the OpenAPI description of the diagnostics API
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/": {
            "get": {
                "description": "Get basic device information and capabilities",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Device information",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/handlers.DeviceInfoResponse"}
                    }
                }
            }
        },
        "/health": {
            "get": {
                "description": "Report pipeline state and model readiness",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/handlers.HealthResponse"}
                    },
                    "503": {
                        "description": "Pipeline not running",
                        "schema": {"$ref": "#/definitions/handlers.HealthResponse"}
                    }
                }
            }
        },
        "/system/stats": {
            "get": {
                "description": "Get runtime memory and goroutine statistics",
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Get system stats",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "object", "additionalProperties": true}
                    }
                }
            }
        },
        "/pipeline/stats": {
            "get": {
                "description": "Get frame pipeline counters",
                "produces": ["application/json"],
                "tags": ["pipeline"],
                "summary": "Get pipeline stats",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/handlers.PipelineStatsResponse"}
                    }
                }
            }
        }
    },
    "definitions": {
        "handlers.DeviceInfoResponse": {
            "type": "object",
            "properties": {
                "device_id": {"type": "string", "example": "pixel-7"},
                "version": {"type": "string", "example": "1.0.0"},
                "environment": {"type": "string", "example": "development"},
                "capabilities": {"type": "array", "items": {"type": "string"}}
            }
        },
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "healthy"},
                "device_id": {"type": "string", "example": "pixel-7"},
                "pipeline_state": {"type": "string", "example": "running"},
                "model_ready": {"type": "boolean"},
                "model_error": {"type": "string"},
                "run_id": {"type": "string"}
            }
        },
        "handlers.PipelineStatsResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "run_id": {"type": "string"},
                "state": {"type": "string"},
                "stats": {"type": "object", "additionalProperties": true},
                "timestamp": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8000",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "SentinelCam Diagnostics API",
	Description:      "Local diagnostics for the SentinelCam detection pipeline",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
