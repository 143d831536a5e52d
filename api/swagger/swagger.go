package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Convocation RFID API",
        "description": "Tag lifecycle, station scanning and reconciliation for convocation logistics",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "tags": [
        {"name": "RFID", "description": "Tag encoding, station scans, dispatch and handover"},
        {"name": "RFID Dashboard", "description": "Population stats and station reconciliation"},
        {"name": "Observability", "description": "Health, readiness and counters"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Observability"],
                "summary": "Liveness check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ready": {
            "get": {
                "tags": ["Observability"],
                "summary": "Readiness check against postgres and redis",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency is unreachable"}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Observability"],
                "summary": "Aggregated service counters",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/rfid/tags": {
            "get": {
                "tags": ["RFID"],
                "summary": "List RFID tags",
                "parameters": [
                    {"name": "type", "in": "query", "type": "string", "enum": ["graduate", "box"]},
                    {"name": "status", "in": "query", "type": "string", "enum": ["encoded", "scanned", "dispatched", "delivered", "returned", "void"]},
                    {"name": "station", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["RFID"],
                "summary": "Register an encoded tag",
                "parameters": [
                    {"name": "X-Operator", "in": "header", "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EncodeTagRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "EPC already registered", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rfid/tags/{epc}": {
            "get": {
                "tags": ["RFID"],
                "summary": "Get tag by EPC or raw reader string",
                "parameters": [{"name": "epc", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rfid/tags/convocation/{number}": {
            "get": {
                "tags": ["RFID"],
                "summary": "Get graduate tag by convocation number",
                "parameters": [{"name": "number", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/rfid/tags/{epc}/void": {
            "post": {
                "tags": ["RFID"],
                "summary": "Void a tag",
                "parameters": [
                    {"name": "epc", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/VoidTagRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/rfid/verify": {
            "post": {
                "tags": ["RFID"],
                "summary": "Resolve a raw read through the EPC fallback chain",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/VerifyTagRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/rfid/scan": {
            "post": {
                "tags": ["RFID"],
                "summary": "Record a tag at a station",
                "parameters": [
                    {"name": "X-Station", "in": "header", "type": "string"},
                    {"name": "X-Operator", "in": "header", "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScanRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Tag not found or void", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Record store unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rfid/scan/bulk": {
            "post": {
                "tags": ["RFID"],
                "summary": "Record many tags at a station",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkScanRequest"}}],
                "responses": {"200": {"description": "Per-item results", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/rfid/dispatch": {
            "post": {
                "tags": ["RFID"],
                "summary": "Dispatch tags, expanding boxes",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DispatchRequest"}}],
                "responses": {"200": {"description": "Per-item results", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/rfid/handover": {
            "post": {
                "tags": ["RFID"],
                "summary": "Hand tags over to a recipient, expanding boxes",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/HandoverRequest"}}],
                "responses": {"200": {"description": "Per-item results", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/rfid/boxes/{epc}/contents": {
            "get": {
                "tags": ["RFID"],
                "summary": "Resolve a box's contents",
                "parameters": [{"name": "epc", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "put": {
                "tags": ["RFID"],
                "summary": "Replace a box's contents",
                "parameters": [
                    {"name": "epc", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetBoxContentsRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/rfid/dashboard": {
            "get": {
                "tags": ["RFID Dashboard"],
                "summary": "Tag population dashboard",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Record store unavailable and no snapshot", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rfid/reconciliation/{station}": {
            "get": {
                "tags": ["RFID Dashboard"],
                "summary": "Classify every tag relative to a station",
                "produces": ["application/json", "text/csv"],
                "parameters": [
                    {"name": "station", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["json", "csv"]}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/rfid/cache/clear": {
            "post": {
                "tags": ["RFID Dashboard"],
                "summary": "Drop the tag snapshot and cached dashboard payloads",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "EncodeTagRequest": {
            "type": "object",
            "required": ["epc", "type", "encodedBy"],
            "properties": {
                "epc": {"type": "string"},
                "type": {"type": "string", "enum": ["graduate", "box"]},
                "convocationNumber": {"type": "string"},
                "boxId": {"type": "string"},
                "boxLabel": {"type": "string"},
                "boxContents": {"type": "array", "items": {"type": "string"}},
                "encodedBy": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "ScanRequest": {
            "type": "object",
            "required": ["epc"],
            "properties": {
                "epc": {"type": "string"},
                "station": {"type": "string"},
                "scannedBy": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "BulkScanRequest": {
            "type": "object",
            "required": ["epcs"],
            "properties": {
                "epcs": {"type": "array", "items": {"type": "string"}},
                "station": {"type": "string"},
                "scannedBy": {"type": "string"},
                "action": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "DispatchRequest": {
            "type": "object",
            "required": ["epcs", "dispatchedBy"],
            "properties": {
                "epcs": {"type": "array", "items": {"type": "string"}},
                "dispatchedBy": {"type": "string"},
                "trackingNumber": {"type": "string"},
                "dispatchMethod": {"type": "string", "enum": ["DTDC", "India Post", "Hand Delivery"]},
                "notes": {"type": "string"}
            }
        },
        "HandoverRequest": {
            "type": "object",
            "required": ["epcs", "handoverBy", "handoverTo"],
            "properties": {
                "epcs": {"type": "array", "items": {"type": "string"}},
                "handoverBy": {"type": "string"},
                "handoverTo": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "VoidTagRequest": {
            "type": "object",
            "required": ["reason", "voidedBy"],
            "properties": {
                "reason": {"type": "string"},
                "voidedBy": {"type": "string"}
            }
        },
        "VerifyTagRequest": {
            "type": "object",
            "required": ["epc"],
            "properties": {
                "epc": {"type": "string"}
            }
        },
        "SetBoxContentsRequest": {
            "type": "object",
            "required": ["updatedBy"],
            "properties": {
                "epcs": {"type": "array", "items": {"type": "string"}},
                "updatedBy": {"type": "string"}
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
                "success": {"type": "boolean"},
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
