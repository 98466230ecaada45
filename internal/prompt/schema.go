package prompt

import (
	"sync"

	"github.com/invopop/jsonschema"
)

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
)

// MetadataSchema returns the JSON Schema describing Metadata.
func MetadataSchema() *jsonschema.Schema {
	schemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
		}
		schema = reflector.Reflect(&Metadata{})
		schema.Title = "AdvisorRequestMetadata"
	})
	return schema
}
