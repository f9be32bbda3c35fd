package analysis

import (
	"sort"
	"strconv"
	"strings"

	"github.com/23skdu/longbow-neurons/internal/model"
)

// KeyComponents picks final_layer plus the three deepest block outputs
// present in available, deepest first.
func KeyComponents(available []string) []string {
	var keys []string
	type layerOut struct {
		name  string
		layer int
	}
	var outs []layerOut
	for _, c := range available {
		if c == model.SiteFinalLayer {
			keys = append(keys, c)
			continue
		}
		if n, ok := blockOutputIndex(c); ok {
			outs = append(outs, layerOut{c, n})
		}
	}
	sort.SliceStable(outs, func(i, j int) bool { return outs[i].layer > outs[j].layer })
	for i := 0; i < len(outs) && i < 3; i++ {
		keys = append(keys, outs[i].name)
	}
	return keys
}

func blockOutputIndex(name string) (int, bool) {
	suffix := "_" + model.SuffixOutput
	if !strings.HasPrefix(name, "layer_") || !strings.HasSuffix(name, suffix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "layer_"), suffix))
	if err != nil {
		return 0, false
	}
	return n, true
}
