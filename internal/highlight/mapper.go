// Package highlight maps canonical failed-element ids onto the viewer's
// per-model addressing scheme.
package highlight

import (
	"strconv"

	"github.com/vinnividivicci/openingbim-cicd/internal/engine"
	"github.com/vinnividivicci/openingbim-cicd/internal/log"
)

// ToAddressable resolves element ids against every loaded model and returns
// the local handles per model name. Ids that do not parse numerically or that
// no model can resolve are skipped; an empty mapping means nothing could be
// highlighted and the caller decides how to react.
func ToAddressable(elementIDs []string, models []engine.Model) map[string][]int64 {
	out := make(map[string][]int64)

	for _, raw := range elementIDs {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.WithComponent("highlight").Debug("skipping non-numeric element id", "element_id", raw)
			continue
		}
		for _, m := range models {
			if handle, ok := m.Lookup(id); ok {
				out[m.Name()] = append(out[m.Name()], handle)
			}
		}
	}

	if len(out) == 0 && len(elementIDs) > 0 {
		log.WithComponent("highlight").Warn("no element ids resolved in any loaded model",
			"requested", len(elementIDs), "models", len(models))
	}
	return out
}
