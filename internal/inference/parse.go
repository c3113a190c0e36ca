package inference

import (
	"encoding/json"
	"strings"

	"github.com/visionaree/visionaree-server/internal/store"
)

type captionOutput struct {
	Caption     string `json:"caption"`
	ThreatLevel string `json:"threat_level"`
}

// parseCaptionOutput decodes the model's JSON contract. Models sometimes
// wrap JSON in markdown fences or ignore the contract entirely; in the
// latter case the raw text becomes the caption with a low threat level.
func parseCaptionOutput(raw string) (string, store.ThreatLevel) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var out captionOutput
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return strings.TrimSpace(raw), store.ThreatLow
	}

	threat := strings.ToLower(strings.TrimSpace(out.ThreatLevel))
	if !store.ValidThreatLevel(threat) {
		threat = string(store.ThreatLow)
	}
	return strings.TrimSpace(out.Caption), store.ThreatLevel(threat)
}
