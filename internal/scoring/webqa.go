package scoring

// WebQAApprox approximates the WebQA answer-accuracy metric without the
// learned fluency term. Closed-domain categories are scored by keyword F1,
// yes/no questions by polarity and the rest by ground-truth token recall.
type WebQAApprox struct{}

// Score implements Metric.
func (WebQAApprox) Score(generated, truth, qcate string) float64 {
	gen := Normalize(generated)
	gt := Normalize(truth)

	switch qcate {
	case CategoryYesNo:
		return yesNoScore(gen, gt)
	case CategoryColor:
		return domainScore(gen, gt, func(w string) (string, bool) { return w, colorWords[w] })
	case CategoryShape:
		return domainScore(gen, gt, func(w string) (string, bool) { return w, shapeWords[w] })
	case CategoryNumber:
		return domainScore(gen, gt, numberToken)
	default:
		return recall(gen, gt)
	}
}

func numberToken(w string) (string, bool) {
	if d, ok := numberWords[w]; ok {
		return d, true
	}
	for _, r := range w {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return w, w != ""
}

func polarity(tokens []string) string {
	for _, t := range tokens {
		if t == "yes" || t == "no" {
			return t
		}
	}
	return ""
}

func yesNoScore(gen, gt []string) float64 {
	want := polarity(gt)
	if want == "" {
		return recall(gen, gt)
	}
	if polarity(gen) == want {
		return 1
	}
	return 0
}

// domainScore computes F1 over the domain keywords found in each answer.
// When the truth carries no domain keyword it falls back to token recall.
func domainScore(gen, gt []string, domain func(string) (string, bool)) float64 {
	truthKeys := keywords(gt, domain)
	if len(truthKeys) == 0 {
		return recall(gen, gt)
	}
	genKeys := keywords(gen, domain)
	if len(genKeys) == 0 {
		return 0
	}

	var common int
	for k := range genKeys {
		if truthKeys[k] {
			common++
		}
	}
	if common == 0 {
		return 0
	}
	p := float64(common) / float64(len(genKeys))
	r := float64(common) / float64(len(truthKeys))
	return 2 * p * r / (p + r)
}

func keywords(tokens []string, domain func(string) (string, bool)) map[string]bool {
	keys := make(map[string]bool)
	for _, t := range tokens {
		if k, ok := domain(t); ok {
			keys[k] = true
		}
	}
	return keys
}

// recall is the share of ground-truth content tokens present in the answer.
// An empty truth scores 1 only against an empty answer.
func recall(gen, gt []string) float64 {
	want := make(map[string]bool)
	for _, t := range gt {
		if !stopwords[t] {
			want[t] = true
		}
	}
	if len(want) == 0 {
		for _, t := range gt {
			want[t] = true
		}
	}
	if len(want) == 0 {
		if len(gen) == 0 {
			return 1
		}
		return 0
	}

	have := make(map[string]bool, len(gen))
	for _, t := range gen {
		have[t] = true
	}
	var hit int
	for t := range want {
		if have[t] {
			hit++
		}
	}
	return float64(hit) / float64(len(want))
}

// Ensure WebQAApprox implements Metric.
var _ Metric = WebQAApprox{}
