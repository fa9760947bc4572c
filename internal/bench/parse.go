package bench

import (
	"encoding/json"
	"strings"
)

// parseModelJSON decodes a JSON object out of a model response, tolerating
// markdown code fences around the payload.
func parseModelJSON(response string, out interface{}) error {
	payload := response
	if i := strings.Index(payload, "```json"); i != -1 {
		payload = payload[i+len("```json"):]
		if j := strings.Index(payload, "```"); j != -1 {
			payload = payload[:j]
		}
	} else if i := strings.Index(payload, "```"); i != -1 {
		payload = payload[i+3:]
		if j := strings.Index(payload, "```"); j != -1 {
			payload = payload[:j]
		}
	}
	return json.Unmarshal([]byte(strings.TrimSpace(payload)), out)
}
