package graph

// Properties that are dropped before a payload leaves the reader. Embedding
// vectors are large and useless to the client.
var droppedPropertyKeys = map[string]struct{}{
	"embedding":           {},
	"fastrp_embedding":    {},
	"reasoning_embedding": {},
}

const (
	maxStringProperty = 200
	maxListProperty   = 10
)

// SlimProperties returns a reduced copy of a property map: embedding vectors
// removed, long strings truncated, and lists capped.
func SlimProperties(props map[string]interface{}) map[string]interface{} {
	if props == nil {
		return map[string]interface{}{}
	}
	slim := make(map[string]interface{}, len(props))
	for key, value := range props {
		if _, drop := droppedPropertyKeys[key]; drop {
			continue
		}
		switch v := value.(type) {
		case string:
			if len(v) > maxStringProperty {
				slim[key] = v[:maxStringProperty] + "..."
			} else {
				slim[key] = v
			}
		case []interface{}:
			if len(v) > maxListProperty {
				slim[key] = v[:maxListProperty]
			} else {
				slim[key] = v
			}
		default:
			slim[key] = value
		}
	}
	return slim
}
