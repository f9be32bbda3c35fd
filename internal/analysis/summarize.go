package analysis

// ComponentImportance is one component's ranking for a category.
type ComponentImportance struct {
	Component string   `json:"component"`
	Neurons   []Neuron `json:"neurons"`
}

// Signal is the strongest neuron found for a category.
type Signal struct {
	Category  string   `json:"category"`
	Found     bool     `json:"found"`
	Component string   `json:"component,omitempty"`
	Neuron    int      `json:"neuron"`
	Score     float64  `json:"score"`
	Top       []Neuron `json:"top,omitempty"`
}

// Summarize picks, per category, the (component, neuron) with the highest
// strictly positive score across components, ties to the earlier component,
// and keeps that component's top 3 neurons.
func Summarize(categories []string, per map[string][]ComponentImportance) []Signal {
	out := make([]Signal, 0, len(categories))
	for _, cat := range categories {
		sig := Signal{Category: cat}
		for _, ci := range per[cat] {
			if len(ci.Neurons) == 0 {
				continue
			}
			best := ci.Neurons[0]
			if best.Score <= 0 || (sig.Found && best.Score <= sig.Score) {
				continue
			}
			sig.Found = true
			sig.Component = ci.Component
			sig.Neuron = best.Index
			sig.Score = best.Score
			n := 3
			if len(ci.Neurons) < n {
				n = len(ci.Neurons)
			}
			sig.Top = append([]Neuron(nil), ci.Neurons[:n]...)
		}
		out = append(out, sig)
	}
	return out
}
