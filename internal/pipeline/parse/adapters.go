package parse

// The service wraps its entity array in several envelope shapes depending on
// endpoint and version. Extraction is an ordered list of adapters, each
// recognizing exactly one shape; the first non-empty match wins.

type shapeAdapter struct {
	name    string
	extract func(map[string]interface{}) []interface{}
}

var shapeAdapters = []shapeAdapter{
	{
		name: "results.entities",
		extract: func(env map[string]interface{}) []interface{} {
			results, ok := env["results"].(map[string]interface{})
			if !ok {
				return nil
			}
			entities, _ := results["entities"].([]interface{})
			return entities
		},
	},
	{
		name: "entities",
		extract: func(env map[string]interface{}) []interface{} {
			entities, _ := env["entities"].([]interface{})
			return entities
		},
	},
	{
		name: "results array",
		extract: func(env map[string]interface{}) []interface{} {
			results, _ := env["results"].([]interface{})
			return results
		},
	},
	{
		name: "bare tags",
		extract: func(env map[string]interface{}) []interface{} {
			tags, _ := env["tags"].([]interface{})
			return tags
		},
	},
}

// RawEntities probes the known envelope shapes in priority order and returns
// the first non-empty entity list, plus the name of the matching shape.
func RawEntities(envelope map[string]interface{}) ([]interface{}, string) {
	if envelope == nil {
		return nil, ""
	}
	for _, adapter := range shapeAdapters {
		if entities := adapter.extract(envelope); len(entities) > 0 {
			return entities, adapter.name
		}
	}
	return nil, ""
}
