package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "OBE Analytics API",
        "description": "Weighted marks to Bloom's taxonomy distribution and outcome attainment analytics",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "BloomsDistribution", "description": "Distribution recomputation and stored reads"},
        {"name": "Analytics", "description": "Achievement, comparison and attainment reports"},
        {"name": "StudentMarks", "description": "Faculty marks entry"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Database unreachable"}
                }
            }
        },
        "/blooms-distribution/calculate/{enrollmentNumber}/{semesterNumber}": {
            "post": {
                "tags": ["BloomsDistribution"],
                "summary": "Recompute and store the Bloom's distribution for a student semester",
                "parameters": [
                    {"name": "enrollmentNumber", "in": "path", "required": true, "type": "string"},
                    {"name": "semesterNumber", "in": "path", "required": true, "type": "integer"},
                    {"name": "subject_code", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/DistributionResult"}},
                    "404": {"description": "Student not found"}
                }
            }
        },
        "/blooms-distribution/stored/{enrollmentNumber}/{semesterNumber}": {
            "get": {
                "tags": ["BloomsDistribution"],
                "summary": "Read the stored Bloom's distribution grouped by subject",
                "parameters": [
                    {"name": "enrollmentNumber", "in": "path", "required": true, "type": "string"},
                    {"name": "semesterNumber", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/StoredDistributionResponse"}},
                    "404": {"description": "Student not found"}
                }
            }
        },
        "/analytics/blooms/detailed/{enrollmentNumber}/{semesterNumber}": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Per-student achievement report by subject, CO and Bloom's level",
                "parameters": [
                    {"name": "enrollmentNumber", "in": "path", "required": true, "type": "string"},
                    {"name": "semesterNumber", "in": "path", "required": true, "type": "integer"},
                    {"name": "subject_code", "in": "query", "type": "string"},
                    {"name": "mode", "in": "query", "type": "string", "enum": ["full", "proportional"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Student not found"}
                }
            }
        },
        "/analytics/blooms/compare/{batchId}/{semesterNumber}": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Cross-cohort Bloom's level comparison for a batch",
                "parameters": [
                    {"name": "batchId", "in": "path", "required": true, "type": "integer"},
                    {"name": "semesterNumber", "in": "path", "required": true, "type": "integer"},
                    {"name": "subject_code", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No students in batch"}
                }
            }
        },
        "/analytics/co-attainment/{subjectCode}/{batchId}/{semesterNumber}": {
            "get": {
                "tags": ["Analytics"],
                "summary": "CO attainment report for a subject and batch",
                "parameters": [
                    {"name": "subjectCode", "in": "path", "required": true, "type": "string"},
                    {"name": "batchId", "in": "path", "required": true, "type": "integer"},
                    {"name": "semesterNumber", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No course outcomes for subject"}
                }
            }
        },
        "/analytics/co-attainment/{subjectCode}/{batchId}/{semesterNumber}/export": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Export the CO attainment report as CSV or PDF",
                "parameters": [
                    {"name": "subjectCode", "in": "path", "required": true, "type": "string"},
                    {"name": "batchId", "in": "path", "required": true, "type": "integer"},
                    {"name": "semesterNumber", "in": "path", "required": true, "type": "integer"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ExportResult"}}
                }
            }
        },
        "/analytics/exports/{token}": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Download a previously exported report via signed token",
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "produces": ["application/octet-stream"],
                "responses": {
                    "200": {"description": "File stream"},
                    "412": {"description": "Invalid or expired token"}
                }
            }
        },
        "/analytics/system": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Instrumentation snapshot for the analytics subsystem",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/blooms-taxonomy": {
            "get": {
                "tags": ["Analytics"],
                "summary": "List the Bloom's taxonomy levels",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/student-marks/{enrollmentNumber}/{subjectCode}": {
            "put": {
                "tags": ["StudentMarks"],
                "summary": "Upsert component marks for a student and subject",
                "parameters": [
                    {"name": "enrollmentNumber", "in": "path", "required": true, "type": "string"},
                    {"name": "subjectCode", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateMarksRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Student or subject not found"}
                }
            }
        }
    },
    "definitions": {
        "DistributionRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "student_id": {"type": "integer"},
                "semester_number": {"type": "integer"},
                "subject_code": {"type": "string"},
                "student_mark_id": {"type": "integer"},
                "component_total": {"type": "number"},
                "weightage_used": {"type": "number"},
                "selected_cos": {"type": "array", "items": {"type": "integer"}},
                "course_outcome_id": {"type": "integer"},
                "blooms_level_id": {"type": "integer"},
                "assigned_marks": {"type": "number"},
                "calculated_at": {"type": "string"}
            }
        },
        "DistributionResult": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "recordsCreated": {"type": "integer"},
                "distributions": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/DistributionRecord"}
                }
            }
        },
        "BloomsLevelMarks": {
            "type": "object",
            "properties": {
                "level": {"type": "string"},
                "marks": {"type": "number"},
                "totalMarks": {"type": "number"},
                "percentage": {"type": "number"}
            }
        },
        "SubjectBloomsSummary": {
            "type": "object",
            "properties": {
                "subject": {"type": "string"},
                "code": {"type": "string"},
                "bloomsLevels": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/BloomsLevelMarks"}
                }
            }
        },
        "StoredDistributionResponse": {
            "type": "object",
            "properties": {
                "semester": {"type": "integer"},
                "bloomsDistribution": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/SubjectBloomsSummary"}
                },
                "totalRecords": {"type": "integer"}
            }
        },
        "MarkEntry": {
            "type": "object",
            "properties": {
                "component_type": {"type": "string", "enum": ["ESE", "CA", "IA", "TW", "VIVA"]},
                "component_name": {"type": "string"},
                "sub_component_id": {"type": "integer"},
                "is_sub_component": {"type": "boolean"},
                "marks_obtained": {"type": "number"},
                "total_marks": {"type": "number"}
            },
            "required": ["component_type", "marks_obtained", "total_marks"]
        },
        "UpdateMarksRequest": {
            "type": "object",
            "properties": {
                "semester_number": {"type": "integer"},
                "entries": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/MarkEntry"}
                }
            },
            "required": ["semester_number", "entries"]
        },
        "ExportResult": {
            "type": "object",
            "properties": {
                "relative_path": {"type": "string"},
                "token": {"type": "string"},
                "url": {"type": "string"},
                "format": {"type": "string"},
                "expires_at": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
