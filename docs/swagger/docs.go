// Package swagger holds the OpenAPI document served at /swagger/doc.json. It is maintained by hand
// alongside the handler annotations; diagnostic routes outside /api are not listed.
package swagger

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
        "/auth/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns the verified identity and role of the caller.",
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Current identity",
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/response.Envelope"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/auth.Identity"}}}]}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/images/{filename}": {
            "get": {
                "description": "Streams an image from the bucket. Responses are publicly cacheable for one day.",
                "produces": ["image/png", "image/jpeg", "image/webp", "application/octet-stream"],
                "tags": ["images"],
                "summary": "Get product image",
                "parameters": [
                    {"type": "string", "description": "Object name, e.g. 1700000000000-lamp.png", "name": "filename", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/products": {
            "get": {
                "description": "Returns every product, newest first. imageUrl is rooted at the requesting host.",
                "produces": ["application/json"],
                "tags": ["products"],
                "summary": "List products",
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/response.Envelope"}, {"type": "object", "properties": {"data": {"type": "array", "items": {"$ref": "#/definitions/product.Product"}}}}]}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Uploads the image to the bucket and stores the product. Admin only.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["products"],
                "summary": "Create product",
                "parameters": [
                    {"type": "string", "description": "Name", "name": "name", "in": "formData", "required": true},
                    {"type": "number", "description": "Price", "name": "price", "in": "formData", "required": true},
                    {"type": "string", "description": "Description", "name": "description", "in": "formData", "required": true},
                    {"type": "string", "description": "Category", "name": "category", "in": "formData", "required": true},
                    {"type": "file", "description": "Product image", "name": "image", "in": "formData", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"allOf": [{"$ref": "#/definitions/response.Envelope"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/product.Product"}}}]}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/products/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["products"],
                "summary": "Get product",
                "parameters": [
                    {"type": "string", "description": "Product ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/response.Envelope"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/product.Product"}}}]}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "description": "Applies the provided fields. An attached image replaces the current one. Admin only.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["products"],
                "summary": "Update product",
                "parameters": [
                    {"type": "string", "description": "Product ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Name", "name": "name", "in": "formData"},
                    {"type": "number", "description": "Price", "name": "price", "in": "formData"},
                    {"type": "string", "description": "Description", "name": "description", "in": "formData"},
                    {"type": "string", "description": "Category", "name": "category", "in": "formData"},
                    {"type": "file", "description": "Replacement image", "name": "image", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/response.Envelope"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/product.Product"}}}]}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "description": "Deletes the product. Image removal is best-effort. Admin only.",
                "produces": ["application/json"],
                "tags": ["products"],
                "summary": "Delete product",
                "parameters": [
                    {"type": "string", "description": "Product ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        }
    },
    "definitions": {
        "auth.Identity": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "role": {"type": "string", "enum": ["user", "admin"]},
                "sessionId": {"type": "string"},
                "userId": {"type": "string"}
            }
        },
        "product.Product": {
            "type": "object",
            "properties": {
                "category": {"type": "string"},
                "createdAt": {"type": "string"},
                "description": {"type": "string"},
                "id": {"type": "string"},
                "imageKey": {"type": "string"},
                "imageStorage": {"type": "string", "enum": ["storage-direct", "proxy"]},
                "imageUrl": {"type": "string"},
                "name": {"type": "string"},
                "price": {"type": "number"},
                "updatedAt": {"type": "string"}
            }
        },
        "response.Envelope": {
            "type": "object",
            "properties": {
                "data": {},
                "details": {"type": "string"},
                "error": {"type": "string"},
                "message": {"type": "string"},
                "success": {"type": "boolean"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Clerk session token. Format: **Bearer {token}**",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:3000",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Storefront API",
	Description:      "Product catalogue backed by a document store, with images kept in a Backblaze B2 bucket.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
