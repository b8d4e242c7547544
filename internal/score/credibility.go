package score

import (
	"math"
	"net/url"
	"strings"
)

// Tier bounds. Lower is more credible.
const (
	BestTier    = 1
	WorstTier   = 5
	UnknownTier = 4
)

// BaselineConfidence is returned when a fact has no sources at all
const BaselineConfidence = 0.3

// DefaultTiers lists source domains per credibility tier:
// 1 official/regulatory records, 2 major press, 3 business/tech press,
// 4 general news and profiles, 5 social and forum content.
var DefaultTiers = map[int][]string{
	1: {"sec.gov", "courtlistener.com", "pacer.gov", "edgar", "opencorporates"},
	2: {"reuters.com", "bloomberg.com", "nytimes.com", "wsj.com", "ft.com"},
	3: {"techcrunch.com", "crunchbase.com", "pitchbook.com", "cbinsights.com"},
	4: {"linkedin.com", "news.google.com", "bbc.com", "cnn.com", "apnews.com"},
	5: {"medium.com", "reddit.com", "twitter.com", "facebook.com", "quora.com"},
}

var tierScores = map[int]float64{
	1: 0.95,
	2: 0.85,
	3: 0.7,
	4: 0.55,
	5: 0.35,
}

// CredibilityClassifier maps source URLs onto tiers
type CredibilityClassifier struct {
	// hostDomains hold dotted entries matched against the URL host
	hostDomains map[string]int
	// fragments hold dotless entries matched anywhere in the URL
	fragments map[string]int
}

// NewCredibilityClassifier builds a classifier from tier lists.
// Entries containing a dot match the host or any subdomain of it;
// dotless entries such as "edgar" match as substrings of the whole URL.
func NewCredibilityClassifier(tiers map[int][]string) *CredibilityClassifier {
	if tiers == nil {
		tiers = DefaultTiers
	}
	c := &CredibilityClassifier{
		hostDomains: make(map[string]int),
		fragments:   make(map[string]int),
	}
	for tier, domains := range tiers {
		for _, d := range domains {
			d = strings.ToLower(strings.TrimSpace(d))
			if d == "" {
				continue
			}
			if strings.Contains(d, ".") {
				c.hostDomains[d] = tier
			} else {
				c.fragments[d] = tier
			}
		}
	}
	return c
}

var defaultClassifier = NewCredibilityClassifier(DefaultTiers)

// Tier classifies a source URL. Empty input is tier 5, unmatched input tier 4.
// When several entries match, the most credible tier wins.
func (c *CredibilityClassifier) Tier(rawURL string) int {
	rawURL = strings.ToLower(strings.TrimSpace(rawURL))
	if rawURL == "" {
		return WorstTier
	}

	best := 0
	consider := func(tier int) {
		if best == 0 || tier < best {
			best = tier
		}
	}

	host := hostOf(rawURL)
	for host != "" {
		if tier, ok := c.hostDomains[host]; ok {
			consider(tier)
		}
		_, parent, found := strings.Cut(host, ".")
		if !found {
			break
		}
		host = parent
	}

	for frag, tier := range c.fragments {
		if strings.Contains(rawURL, frag) {
			consider(tier)
		}
	}

	if best == 0 {
		return UnknownTier
	}
	return best
}

func hostOf(rawURL string) string {
	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}

// SourceTier classifies a URL with the default tier lists
func SourceTier(rawURL string) int {
	return defaultClassifier.Tier(rawURL)
}

// ComputeConfidence scores a claim from its sources.
// The best tier sets the base score, corroboration adds up to 0.15,
// recencyWeight scales the sum. The result is clamped to [0,1] and rounded to 2 places.
func ComputeConfidence(sourceURLs []string, corroborationCount int, recencyWeight float64) float64 {
	if len(sourceURLs) == 0 {
		return BaselineConfidence
	}

	best := WorstTier
	for _, u := range sourceURLs {
		if t := SourceTier(u); t < best {
			best = t
		}
	}

	bonus := math.Min(0.15, float64(corroborationCount-1)*0.05)
	score := (tierScores[best] + bonus) * recencyWeight
	return round(math.Min(1.0, math.Max(0.0, score)), 2)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
