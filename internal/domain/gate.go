// Package domain decides whether a query belongs to the served knowledge domain.
package domain

import "strings"

// DefaultKeywords is the IVF and reproductive-medicine vocabulary used when no
// keyword list is configured.
var DefaultKeywords = []string{
	"ivf", "fertility", "infertility", "egg", "oocyte", "sperm",
	"embryo", "endometrium", "uterus", "ovary", "fallopian",
	"hormone", "amh", "fsh", "lh", "blastocyst", "implantation",
	"embryologist", "icsi", "iui", "transfer", "follicle",
	"stimulation", "hcg", "progesterone", "endocrine",
	"zona pellucida", "andrology", "retrieval",
	"beta hcg", "pcos", "endometriosis", "estrogen",
	"follicular", "ovulation",
}

// Gate admits queries containing at least one domain keyword, matched as a
// case-insensitive substring.
type Gate struct {
	keywords []string
}

// NewGate builds a gate from keywords. Blank and duplicate keywords are dropped;
// an empty list falls back to DefaultKeywords.
func NewGate(keywords []string) *Gate {
	seen := make(map[string]bool, len(keywords))
	kws := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		kws = append(kws, k)
	}
	if len(kws) == 0 && len(keywords) == 0 {
		return NewGate(DefaultKeywords)
	}
	return &Gate{keywords: kws}
}

// Admit reports whether query mentions any domain keyword.
func (g *Gate) Admit(query string) bool {
	_, ok := g.Match(query)
	return ok
}

// Match returns the first keyword found in query.
func (g *Gate) Match(query string) (string, bool) {
	q := strings.ToLower(query)
	for _, k := range g.keywords {
		if strings.Contains(q, k) {
			return k, true
		}
	}
	return "", false
}

// Keywords returns a copy of the gate's keyword list.
func (g *Gate) Keywords() []string {
	return append([]string(nil), g.keywords...)
}
