package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// chatRequestSchema constrains the inbound chat request body. Anything that
// fails here surfaces as a VALIDATION_ERROR before the pipeline starts.
var chatRequestSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"profileId": map[string]interface{}{
			"type":      "string",
			"minLength": 1,
		},
		"message": map[string]interface{}{
			"type":      "string",
			"minLength": 1,
			"maxLength": 2000,
		},
		"take": map[string]interface{}{
			"type":    "integer",
			"minimum": 0,
			"maximum": 100,
		},
		"detailLevel": map[string]interface{}{
			"type": "string",
			"enum": []string{"full", "summary", "tiny", "minimal"},
		},
	},
	"required":             []string{"profileId", "message"},
	"additionalProperties": false,
}

// ValidateChatRequest checks a decoded request body against the chat schema.
// Returns a joined description of every violation, or "" when valid.
func ValidateChatRequest(body map[string]interface{}) (string, error) {
	schemaLoader := gojsonschema.NewGoLoader(chatRequestSchema)
	documentLoader := gojsonschema.NewGoLoader(body)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return "", fmt.Errorf("schema validation: %w", err)
	}

	if result.Valid() {
		return "", nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return strings.Join(problems, "; "), nil
}
