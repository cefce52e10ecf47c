package crudlspec

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"

	"github.com/bitechdev/CrudlSpec/pkg/logger"
	"github.com/bitechdev/CrudlSpec/pkg/reflection"
)

// OpenAPISpec represents the OpenAPI 3.0 document structure
type OpenAPISpec struct {
	OpenAPI    string              `json:"openapi"`
	Info       Info                `json:"info"`
	Servers    []ServerObject      `json:"servers,omitempty"`
	Paths      map[string]PathItem `json:"paths"`
	Components Components          `json:"components"`
}

type Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type ServerObject struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

type PathItem struct {
	Get    *OperationObject `json:"get,omitempty"`
	Post   *OperationObject `json:"post,omitempty"`
	Put    *OperationObject `json:"put,omitempty"`
	Patch  *OperationObject `json:"patch,omitempty"`
	Delete *OperationObject `json:"delete,omitempty"`
}

type OperationObject struct {
	Summary     string                    `json:"summary,omitempty"`
	OperationID string                    `json:"operationId,omitempty"`
	Tags        []string                  `json:"tags,omitempty"`
	Parameters  []Parameter               `json:"parameters,omitempty"`
	RequestBody *RequestBody              `json:"requestBody,omitempty"`
	Responses   map[string]ResponseObject `json:"responses"`
}

type Parameter struct {
	Name        string        `json:"name"`
	In          string        `json:"in"` // "query", "header", "path", "cookie"
	Description string        `json:"description,omitempty"`
	Required    bool          `json:"required,omitempty"`
	Schema      *SchemaObject `json:"schema,omitempty"`
}

type RequestBody struct {
	Description string               `json:"description,omitempty"`
	Required    bool                 `json:"required,omitempty"`
	Content     map[string]MediaType `json:"content"`
}

type MediaType struct {
	Schema *SchemaObject `json:"schema,omitempty"`
}

type ResponseObject struct {
	Description string               `json:"description"`
	Headers     map[string]Parameter `json:"headers,omitempty"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

type Components struct {
	Schemas map[string]*SchemaObject `json:"schemas,omitempty"`
}

type SchemaObject struct {
	Type        string                   `json:"type,omitempty"`
	Format      string                   `json:"format,omitempty"`
	Description string                   `json:"description,omitempty"`
	Properties  map[string]*SchemaObject `json:"properties,omitempty"`
	Items       *SchemaObject            `json:"items,omitempty"`
	Required    []string                 `json:"required,omitempty"`
	Ref         string                   `json:"$ref,omitempty"`
	Nullable    bool                     `json:"nullable,omitempty"`
	Enum        []interface{}            `json:"enum,omitempty"`
}

// OpenAPIConfig holds document-level settings for spec generation.
type OpenAPIConfig struct {
	Title       string
	Description string
	Version     string
	BaseURL     string
}

// OpenAPIGenerator builds an OpenAPI 3.0 document from assembled controllers.
type OpenAPIGenerator struct {
	config      OpenAPIConfig
	controllers []*Controller
}

// NewOpenAPIGenerator creates a generator for the given controllers.
func NewOpenAPIGenerator(config OpenAPIConfig, controllers ...*Controller) *OpenAPIGenerator {
	if config.Title == "" {
		config.Title = "CrudlSpec API"
	}
	if config.Version == "" {
		config.Version = "1.0.0"
	}
	return &OpenAPIGenerator{config: config, controllers: controllers}
}

// Generate creates the complete OpenAPI document.
func (g *OpenAPIGenerator) Generate() *OpenAPISpec {
	spec := &OpenAPISpec{
		OpenAPI: "3.0.0",
		Info: Info{
			Title:       g.config.Title,
			Description: g.config.Description,
			Version:     g.config.Version,
		},
		Paths: make(map[string]PathItem),
		Components: Components{
			Schemas: make(map[string]*SchemaObject),
		},
	}

	if g.config.BaseURL != "" {
		spec.Servers = []ServerObject{
			{URL: g.config.BaseURL, Description: "API Server"},
		}
	}

	spec.Components.Schemas["ErrorPayload"] = errorPayloadSchema()

	for _, controller := range g.controllers {
		g.addController(spec, controller)
	}

	return spec
}

// GenerateJSON generates the OpenAPI document as indented JSON.
func (g *OpenAPIGenerator) GenerateJSON() (string, error) {
	data, err := json.MarshalIndent(g.Generate(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal spec: %w", err)
	}
	return string(data), nil
}

// SpecHandler returns an HTTP handler serving the generated document as JSON.
// The document is generated once; controllers are immutable after assembly.
func (g *OpenAPIGenerator) SpecHandler() http.HandlerFunc {
	doc, err := g.GenerateJSON()
	return func(w http.ResponseWriter, r *http.Request) {
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to generate spec: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, werr := w.Write([]byte(doc)); werr != nil {
			logger.Warn("Failed to write OpenAPI spec. %v", werr)
		}
	}
}

// addController registers the component schemas and path items for one
// controller's generated operations.
func (g *OpenAPIGenerator) addController(spec *OpenAPISpec, c *Controller) {
	register := func(s *Schema) string {
		if s == nil {
			return ""
		}
		spec.Components.Schemas[s.name] = schemaObject(s)
		return "#/components/schemas/" + s.name
	}

	createRef := register(c.createSchema)
	createRespRef := register(c.createResponseSchema)
	getOneRef := register(c.getOneSchema)
	updateRef := register(c.updateSchema)
	patchRef := register(c.patchSchema)
	listRef := register(c.listSchema)

	for _, op := range c.Operations() {
		oo := &OperationObject{
			OperationID: op.OperationID,
			Tags:        []string{c.name},
			Responses:   map[string]ResponseObject{},
		}

		errorResponses := func(codes ...string) {
			for _, code := range codes {
				oo.Responses[code] = ResponseObject{
					Description: httpStatusDescription(code),
					Content:     jsonContent(&SchemaObject{Ref: "#/components/schemas/ErrorPayload"}),
				}
			}
		}

		switch op.Action {
		case ActionCreate:
			oo.Summary = "Create a new " + c.name
			oo.RequestBody = &RequestBody{
				Required: true,
				Content:  jsonContent(&SchemaObject{Ref: createRef}),
			}
			oo.Responses["201"] = ResponseObject{
				Description: "Created",
				Content:     jsonContent(&SchemaObject{Ref: createRespRef}),
			}
			errorResponses("401", "403", "404", "409", "422")

		case ActionList:
			oo.Summary = "List " + c.name + " objects"
			oo.Parameters = []Parameter{
				{Name: "limit", In: "query", Description: "Maximum number of rows to return", Schema: &SchemaObject{Type: "integer"}},
				{Name: "offset", In: "query", Description: "Number of rows to skip", Schema: &SchemaObject{Type: "integer"}},
			}
			oo.Responses["200"] = ResponseObject{
				Description: "OK",
				Headers: map[string]Parameter{
					"x-total-count": {Description: "Total number of matching rows", Schema: &SchemaObject{Type: "integer"}},
				},
				Content: jsonContent(&SchemaObject{Type: "array", Items: &SchemaObject{Ref: listRef}}),
			}
			errorResponses("401", "403", "422")

		case ActionGetOne:
			oo.Summary = "Get one " + c.name
			oo.Parameters = []Parameter{idPathParam()}
			oo.Responses["200"] = ResponseObject{
				Description: "OK",
				Content:     jsonContent(&SchemaObject{Ref: getOneRef}),
			}
			errorResponses("401", "403", "404")

		case ActionUpdate:
			oo.Summary = "Update a " + c.name
			oo.Parameters = []Parameter{idPathParam()}
			oo.RequestBody = &RequestBody{
				Required: true,
				Content:  jsonContent(&SchemaObject{Ref: updateRef}),
			}
			oo.Responses["200"] = ResponseObject{Description: "OK"}
			errorResponses("401", "403", "404", "409", "422")

		case ActionPartialUpdate:
			oo.Summary = "Partially update a " + c.name
			oo.Parameters = []Parameter{idPathParam()}
			oo.RequestBody = &RequestBody{
				Required: true,
				Content:  jsonContent(&SchemaObject{Ref: patchRef}),
			}
			oo.Responses["200"] = ResponseObject{Description: "OK"}
			errorResponses("401", "403", "404", "409", "422")

		case ActionDelete:
			oo.Summary = "Delete a " + c.name
			oo.Parameters = []Parameter{idPathParam()}
			oo.Responses["204"] = ResponseObject{Description: "No Content"}
			errorResponses("401", "403", "404")
		}

		item := spec.Paths[op.Path]
		switch op.Method {
		case "GET":
			item.Get = oo
		case "POST":
			item.Post = oo
		case "PUT":
			item.Put = oo
		case "PATCH":
			item.Patch = oo
		case "DELETE":
			item.Delete = oo
		}
		spec.Paths[op.Path] = item
	}
}

// schemaObject converts a compiled field selection into an OpenAPI schema.
func schemaObject(s *Schema) *SchemaObject {
	obj := &SchemaObject{
		Type:       "object",
		Properties: make(map[string]*SchemaObject),
	}

	for _, f := range s.fields {
		name := f.name
		var prop *SchemaObject

		switch f.desc.Category {
		case reflection.FieldScalar:
			prop = fieldTypeSchema(f)

		case reflection.FieldToOne:
			if f.nested != nil {
				prop = schemaObject(f.nested)
				prop.Nullable = !f.required
			} else {
				// without a nested selection the FK column carries the value
				name = f.desc.StorageAttr
				prop = identifierSchema()
				prop.Description = "Related object identifier"
			}

		case reflection.FieldToManyOrReverse:
			if f.nested != nil {
				prop = &SchemaObject{Type: "array", Items: schemaObject(f.nested)}
			} else {
				prop = &SchemaObject{
					Type:        "array",
					Description: "Related object identifiers",
					Items:       identifierSchema(),
				}
			}
		}

		obj.Properties[name] = prop
		if f.required && !s.patch {
			obj.Required = append(obj.Required, name)
		}
	}

	return obj
}

// fieldTypeSchema maps a scalar field's Go kind to an OpenAPI type.
func fieldTypeSchema(f schemaField) *SchemaObject {
	if f.isTime {
		return &SchemaObject{Type: "string", Format: "date-time"}
	}

	switch f.kind {
	case reflect.String:
		return &SchemaObject{Type: "string"}
	case reflect.Bool:
		return &SchemaObject{Type: "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &SchemaObject{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &SchemaObject{Type: "number"}
	default:
		return &SchemaObject{Type: "object"}
	}
}

// identifierSchema describes a relation identifier, which may be numeric or a
// string key depending on the related model's primary key.
func identifierSchema() *SchemaObject {
	return &SchemaObject{Description: "Object identifier"}
}

func idPathParam() Parameter {
	return Parameter{
		Name:     "id",
		In:       "path",
		Required: true,
		Schema:   &SchemaObject{Type: "string"},
	}
}

func jsonContent(schema *SchemaObject) map[string]MediaType {
	return map[string]MediaType{
		"application/json": {Schema: schema},
	}
}

// errorPayloadSchema describes the uniform error body every non-2xx response
// carries.
func errorPayloadSchema() *SchemaObject {
	return &SchemaObject{
		Type: "object",
		Properties: map[string]*SchemaObject{
			"success": {Type: "boolean", Enum: []interface{}{false}},
			"code": {
				Type: "string",
				Enum: []interface{}{
					"Unauthorized", "Forbidden", "ResourceNotFound", "Conflict",
					"UnprocessableEntity", "TooManyRequests", "ServiceUnavailable",
					"InternalServerError",
				},
			},
			"message":               {Type: "string"},
			"user_friendly_message": {Type: "string"},
			"request_id":            {Type: "string"},
			"details":               {Description: "Machine-readable error detail", Nullable: true},
		},
		Required: []string{"success", "code", "message", "user_friendly_message"},
	}
}

func httpStatusDescription(code string) string {
	switch code {
	case "401":
		return "Unauthorized"
	case "403":
		return "Forbidden"
	case "404":
		return "Not Found"
	case "409":
		return "Conflict"
	case "422":
		return "Unprocessable Entity"
	default:
		return "Error"
	}
}
