// Package schemas validates search API response envelopes against the JSON
// Schemas embedded under api/.
package schemas

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed api/*.json
var apiFS embed.FS

// Names of the embedded response schemas.
const (
	SearchList = "search_list"
	JobDetail  = "job_detail"
	Employer   = "employer"
)

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Schema string
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s validation failed:", ve.Schema)
	for i, err := range ve.Errors {
		fmt.Fprintf(&sb, "\n  %d. %s: %s", i+1, err.Field, err.Message)
	}
	return sb.String()
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

// Schema is a compiled JSON Schema, safe for concurrent use.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// Compile parses schema content.
func Compile(name, content string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(content))
	if err != nil {
		return nil, &SchemaLoadError{Path: name, Message: "invalid schema", Cause: err}
	}
	return &Schema{name: name, schema: s}, nil
}

// Load compiles one of the embedded response schemas by name.
func Load(name string) (*Schema, error) {
	path := "api/" + name + ".json"
	data, err := apiFS.ReadFile(path)
	if err != nil {
		return nil, &SchemaLoadError{Path: path, Message: "schema not found", Cause: err}
	}
	return Compile(name, string(data))
}

// Name returns the schema name used in error messages.
func (s *Schema) Name() string {
	return s.name
}

// Validate checks a JSON document. It returns *ValidationError when the
// document does not match and *SchemaLoadError when it cannot be parsed.
func (s *Schema) Validate(doc []byte) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return &SchemaLoadError{Path: s.name, Message: "failed to load document", Cause: err}
	}
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Schema: s.name,
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return validationErr
}

// Set holds the compiled schemas for the three endpoints.
type Set struct {
	SearchList *Schema
	JobDetail  *Schema
	Employer   *Schema
}

// LoadSet compiles every embedded response schema.
func LoadSet() (*Set, error) {
	set := &Set{}
	for name, dst := range map[string]**Schema{
		SearchList: &set.SearchList,
		JobDetail:  &set.JobDetail,
		Employer:   &set.Employer,
	} {
		s, err := Load(name)
		if err != nil {
			return nil, err
		}
		*dst = s
	}
	return set, nil
}
