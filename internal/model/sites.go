package model

import "fmt"

const (
	SiteInputEmbeds = "input_embeds"
	SiteFinalLayer  = "final_layer"
	SiteLogits      = "logits"
)

// Per-block site suffixes, in execution order.
const (
	SuffixLN1      = "ln_1"
	SuffixAttnProj = "attn_proj"
	SuffixAttn     = "attn"
	SuffixLN2      = "ln_2"
	SuffixMLPFC    = "mlp_fc"
	SuffixMLP      = "mlp"
	SuffixOutput   = "output"
)

var blockSuffixes = []string{SuffixLN1, SuffixAttnProj, SuffixAttn, SuffixLN2, SuffixMLPFC, SuffixMLP, SuffixOutput}

func BlockSite(layer int, suffix string) string {
	return fmt.Sprintf("layer_%d_%s", layer, suffix)
}

// SiteNames lists every site of an n-block model in execution order.
func SiteNames(layers int) []string {
	sites := []string{SiteInputEmbeds}
	for i := 0; i < layers; i++ {
		for _, s := range blockSuffixes {
			sites = append(sites, BlockSite(i, s))
		}
	}
	return append(sites, SiteFinalLayer, SiteLogits)
}

// SiteInfo describes a site for listing.
type SiteInfo struct {
	Name        string `json:"name"`
	Shape       string `json:"shape"`
	Description string `json:"description"`
}

// Describe returns the sites with their output layout.
func (m *Model) Describe() []SiteInfo {
	c := m.cfg
	out := []SiteInfo{{SiteInputEmbeds, fmt.Sprintf("[1,T,%d]", c.Dim), "token + position embeddings"}}
	for i := 0; i < c.Layers; i++ {
		out = append(out,
			SiteInfo{BlockSite(i, SuffixLN1), fmt.Sprintf("[1,T,%d]", c.Dim), "layer norm before attention"},
			SiteInfo{BlockSite(i, SuffixAttnProj), fmt.Sprintf("[1,T,%d]", 3*c.Dim), "query/key/value projection"},
			SiteInfo{BlockSite(i, SuffixAttn), fmt.Sprintf("[1,T,%d]+[1,%d,T,T]", c.Dim, c.Heads), "attention output and weights"},
			SiteInfo{BlockSite(i, SuffixLN2), fmt.Sprintf("[1,T,%d]", c.Dim), "layer norm before MLP"},
			SiteInfo{BlockSite(i, SuffixMLPFC), fmt.Sprintf("[1,T,%d]", c.HiddenDim), "MLP intermediate"},
			SiteInfo{BlockSite(i, SuffixMLP), fmt.Sprintf("[1,T,%d]", c.Dim), "MLP output"},
			SiteInfo{BlockSite(i, SuffixOutput), fmt.Sprintf("[1,T,%d]", c.Dim), "full block output"},
		)
	}
	return append(out,
		SiteInfo{SiteFinalLayer, fmt.Sprintf("[1,T,%d]", c.Dim), "final layer norm"},
		SiteInfo{SiteLogits, fmt.Sprintf("[1,T,%d]", c.VocabSize), "output logits"},
	)
}
