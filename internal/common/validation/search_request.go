package validation

// SearchRequestSchema describes the search payload accepted over HTTP and as
// Zeebe job variables. Range checks that depend on configuration (max limit,
// embedding dimension) are enforced by the engine.
const SearchRequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "query": {"type": "string", "maxLength": 1000},
    "embedding": {
      "type": ["array", "null"],
      "items": {"type": "number"}
    },
    "filters": {
      "type": "object",
      "properties": {
        "state": {"type": "string", "pattern": "^[A-Za-z]{2}$"},
        "city": {"type": "string", "minLength": 1, "maxLength": 100},
        "minAum": {"type": "number", "minimum": 0},
        "minVcActivity": {"type": "integer", "minimum": 0},
        "fundType": {"type": "string", "minLength": 1, "maxLength": 64},
        "threshold": {"type": "number", "minimum": -1, "maximum": 1}
      },
      "additionalProperties": false
    },
    "limit": {"type": "integer", "minimum": 1},
    "offset": {"type": "integer", "minimum": 0}
  },
  "additionalProperties": false
}`

// NewSearchRequestValidator compiles SearchRequestSchema.
func NewSearchRequestValidator() (*Validator, error) {
	return NewValidator(SearchRequestSchema)
}
