package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Course Export API",
        "description": "Course performance reports and resilient multi-format student exports",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "Bearer": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Exports", "description": "Student exports with strategy fallback"},
        {"name": "Reports", "description": "Locally rendered course documents"}
    ],
    "paths": {
        "/courses/{id}/export": {
            "post": {
                "tags": ["Exports"],
                "summary": "Export course students, falling back across strategies",
                "security": [{"Bearer": []}],
                "produces": ["text/csv", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "application/vnd.ms-excel"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Export file; X-Export-Tier names the strategy that produced it", "schema": {"type": "file"}},
                    "502": {"description": "Every strategy failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Queue an asynchronous course export",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportJobRequest"}}
                ],
                "responses": {
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Async exports disabled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/{id}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Get export job status",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ExportStatus"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/export/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a finished export via signed token",
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Export file", "schema": {"type": "file"}},
                    "403": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{id}/report": {
            "get": {
                "tags": ["Reports"],
                "summary": "Course student report",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "xlsx", "xls", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Report file", "schema": {"type": "file"}},
                    "400": {"description": "Unsupported format", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{id}/analytics": {
            "get": {
                "tags": ["Reports"],
                "summary": "Course averages and grade distribution",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/CourseAnalytics"}}
                }
            }
        },
        "/courses/{id}/students/{studentId}/attendance-report": {
            "get": {
                "tags": ["Reports"],
                "summary": "Student attendance report",
                "security": [{"Bearer": []}],
                "produces": ["text/html"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "studentId", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "HTML document", "schema": {"type": "file"}}
                }
            }
        },
        "/quiz-entries/export": {
            "get": {
                "tags": ["Reports"],
                "summary": "Export quiz entries of one day",
                "security": [{"Bearer": []}],
                "produces": ["text/csv"],
                "parameters": [
                    {"name": "date", "in": "query", "type": "string", "format": "date"},
                    {"name": "courseId", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "CSV file", "schema": {"type": "file"}}
                }
            }
        }
    },
    "definitions": {
        "ExportJobRequest": {
            "type": "object",
            "required": ["courseId"],
            "properties": {
                "courseId": {"type": "integer"}
            }
        },
        "TierAttempt": {
            "type": "object",
            "properties": {
                "tier": {"type": "string", "enum": ["local-direct", "remote-export", "manual-fetch", "local-xml"]},
                "error": {"type": "string"},
                "durationMs": {"type": "integer"}
            }
        },
        "ExportStatus": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "courseId": {"type": "integer"},
                "status": {"type": "string", "enum": ["QUEUED", "PROCESSING", "FINISHED", "FAILED"]},
                "tier": {"type": "string"},
                "filename": {"type": "string"},
                "resultUrl": {"type": "string"},
                "error": {"type": "string"},
                "attempts": {"type": "array", "items": {"$ref": "#/definitions/TierAttempt"}},
                "createdAt": {"type": "string", "format": "date-time"},
                "finishedAt": {"type": "string", "format": "date-time"}
            }
        },
        "CourseAnalytics": {
            "type": "object",
            "properties": {
                "courseId": {"type": "integer"},
                "courseTitle": {"type": "string"},
                "students": {"type": "integer"},
                "averageGrade": {"type": "number"},
                "averageAttendance": {"type": "number"},
                "gradeDistribution": {
                    "type": "object",
                    "properties": {
                        "excellent": {"type": "integer"},
                        "good": {"type": "integer"},
                        "average": {"type": "integer"},
                        "below": {"type": "integer"}
                    }
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
