package gate

import "strings"

// Weights control how the three scoring axes combine. The defaults favor
// writing need: prose the user will actually read benefits most from the
// quality tier.
type Weights struct {
	Complexity float64 `json:"complexity" yaml:"complexity"`
	Writing    float64 `json:"writing" yaml:"writing"`
	Risk       float64 `json:"risk" yaml:"risk"`
}

// DefaultWeights returns the standard axis weights.
func DefaultWeights() Weights {
	return Weights{Complexity: 0.35, Writing: 0.45, Risk: 0.20}
}

// DefaultAutoThreshold is the total score above which auto mode escalates.
const DefaultAutoThreshold = 0.45

// Score is the per-axis breakdown behind a gating decision.
type Score struct {
	Complexity float64 `json:"complexity"`
	Writing    float64 `json:"writing"`
	Risk       float64 `json:"risk"`
	Total      float64 `json:"total"`
}

// Sequencing markers that indicate multi-step requests.
var complexityMarkers = []string{" and ", " then ", " after ", " before ", " while ", " also "}

// Verbs asking for prose the user will read, not a lookup.
var writingVerbs = []string{"write", "draft", "compose", "summarize", "summarise", "rewrite", "reply", "respond", "translate", "explain"}

// Verbs whose effects leave the device.
var riskVerbs = []string{"send", "delete", "remove", "pay", "buy", "purchase", "cancel", "transfer", "forward", "publish", "order"}

// Evaluate scores an utterance for quality-tier need. slotCount is how many
// slots the router extracted; richer requests score as more complex.
func Evaluate(utterance string, slotCount int, w Weights) Score {
	lower := strings.ToLower(utterance)

	s := Score{
		Complexity: complexityScore(lower, slotCount),
		Writing:    verbScore(lower, writingVerbs, 0.6, 0.2),
		Risk:       verbScore(lower, riskVerbs, 0.7, 0.15),
	}
	s.Total = clamp01(w.Complexity*s.Complexity + w.Writing*s.Writing + w.Risk*s.Risk)
	return s
}

func complexityScore(lower string, slotCount int) float64 {
	words := len(strings.Fields(lower))
	s := float64(words) / 30.0
	if s > 0.5 {
		s = 0.5
	}
	for _, m := range complexityMarkers {
		if strings.Contains(lower, m) {
			s += 0.15
		}
	}
	if strings.Count(lower, "?") > 1 {
		s += 0.1
	}
	s += 0.1 * float64(slotCount)
	return clamp01(s)
}

// verbScore matches verbs against token prefixes so inflections count too
// ("sending" hits "send"). The first hit carries most of the weight.
func verbScore(lower string, verbs []string, first, extra float64) float64 {
	hits := 0
	tokens := strings.Fields(lower)
	for _, v := range verbs {
		for _, tok := range tokens {
			if strings.HasPrefix(tok, v) {
				hits++
				break
			}
		}
	}
	if hits == 0 {
		return 0
	}
	return clamp01(first + extra*float64(hits-1))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
