package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/lendbook/lendbook-backend/docs"
	"github.com/swaggo/swag"
)

// OpenAPI3Spec is the subset of an OpenAPI 3.0 document produced from the swag output
type OpenAPI3Spec struct {
	OpenAPI    string         `json:"openapi"`
	Info       map[string]any `json:"info"`
	Servers    []Server       `json:"servers"`
	Paths      map[string]any `json:"paths"`
	Components map[string]any `json:"components,omitempty"`
}

// Server represents an OpenAPI 3.0 server
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

// DefaultServers lists the local server only; production adds its public URL
func DefaultServers(publicURL string) []Server {
	servers := []Server{{URL: "http://localhost:8080/api/v1", Description: "Local Development"}}
	if publicURL != "" {
		servers = append(servers, Server{
			URL:         strings.TrimSuffix(publicURL, "/") + "/api/v1",
			Description: "Production",
		})
	}
	return servers
}

// convertRefs rewrites Swagger 2.0 $refs and parameters into their OpenAPI 3.0 shape
func convertRefs(data any) any {
	switch v := data.(type) {
	case map[string]any:
		if _, hasIn := v["in"]; hasIn {
			if _, hasName := v["name"]; hasName {
				return convertParameter(v)
			}
		}

		result := make(map[string]any, len(v))
		for key, value := range v {
			if ref, ok := value.(string); ok && key == "$ref" {
				result[key] = strings.Replace(ref, "#/definitions/", "#/components/schemas/", 1)
				continue
			}
			result[key] = convertRefs(value)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = convertRefs(item)
		}
		return result
	default:
		return data
	}
}

// convertParameter moves type information of a non-body parameter under "schema"
func convertParameter(param map[string]any) map[string]any {
	if param["in"] == "body" {
		return param
	}

	result := make(map[string]any)
	for _, field := range []string{"name", "in", "description", "required"} {
		if val, ok := param[field]; ok {
			result[field] = val
		}
	}

	schema := make(map[string]any)
	for _, field := range []string{"type", "format", "enum", "default", "minimum", "maximum", "items"} {
		val, ok := param[field]
		if !ok {
			continue
		}
		if field == "items" {
			val = convertRefs(val)
		}
		schema[field] = val
	}
	if len(schema) > 0 {
		result["schema"] = schema
	}
	return result
}

// ConvertToOpenAPI3 turns a swag-generated Swagger 2.0 document into OpenAPI 3.0
func ConvertToOpenAPI3(doc string, servers []Server) (*OpenAPI3Spec, error) {
	var swagger2 map[string]any
	if err := json.Unmarshal([]byte(doc), &swagger2); err != nil {
		return nil, err
	}

	info, _ := swagger2["info"].(map[string]any)
	paths, _ := swagger2["paths"].(map[string]any)
	convertedPaths, _ := convertRefs(paths).(map[string]any)

	components := make(map[string]any)
	if secDefs, ok := swagger2["securityDefinitions"].(map[string]any); ok {
		components["securitySchemes"] = secDefs
	}
	if definitions, ok := swagger2["definitions"].(map[string]any); ok {
		components["schemas"] = convertRefs(definitions)
	}

	return &OpenAPI3Spec{
		OpenAPI:    "3.0.3",
		Info:       info,
		Servers:    servers,
		Paths:      convertedPaths,
		Components: components,
	}, nil
}

// OpenAPI3Handler serves the registered swag document converted to OpenAPI 3.0
func OpenAPI3Handler(servers []Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
		if err != nil {
			return NewInternalError(c, "Failed to read API document")
		}
		spec, err := ConvertToOpenAPI3(doc, servers)
		if err != nil {
			return NewInternalError(c, "Failed to parse API document")
		}
		return c.JSON(http.StatusOK, spec)
	}
}
