// Package strategy holds the creator's positioning profile: the durable
// context used to steer assistant output, and the completeness score
// shown on the dashboard.
package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf16"
)

// Monetization describes what the creator sells.
type Monetization struct {
	Product string   `json:"product"`
	Price   string   `json:"price"`
	Assets  []string `json:"assets"`
	Model   string   `json:"model"`
}

// ContentMix allocates publishing effort across four content buckets,
// in percent. The buckets are expected to sum to 100 but any sum is
// accepted.
type ContentMix struct {
	Viral  int `json:"viral"`
	Expert int `json:"expert"`
	Case   int `json:"case"`
	Warmup int `json:"warmup"`
}

// Sum returns the total allocation.
func (m ContentMix) Sum() int { return m.Viral + m.Expert + m.Case + m.Warmup }

// Balanced reports whether the buckets add up to exactly 100.
func (m ContentMix) Balanced() bool { return m.Sum() == 100 }

// ShortsLogic captures the short-form video formula.
type ShortsLogic struct {
	Structure            []string `json:"structure"`
	HookExamples         []string `json:"hook_examples"`
	PolarizationExamples []string `json:"polarization_examples"`
}

// Profile is the strategy singleton. It is always replaced wholesale.
type Profile struct {
	Goals          string `json:"goals"`
	Positioning    string `json:"positioning"`
	TargetAudience string `json:"target_audience"`
	CustomerPains  string `json:"customer_pains"`
	Triggers       string `json:"triggers"`
	Cases          string `json:"cases"`
	FullContext    string `json:"full_context"`

	Monetization        *Monetization `json:"monetization"`
	ShortsLogic         *ShortsLogic  `json:"shorts_logic"`
	ContentArchitecture *ContentMix   `json:"content_architecture"`

	// legacy is set when a nested structure arrived as a JSON-encoded
	// string and had to be unpacked.
	legacy bool
}

// UnmarshalJSON decodes a profile. Older servers stored monetization and
// shorts_logic as JSON text inside a string; that form is unpacked and
// the profile is flagged so Store.Load can write it back normalized.
func (p *Profile) UnmarshalJSON(data []byte) error {
	type plain Profile
	aux := struct {
		*plain
		Monetization json.RawMessage `json:"monetization"`
		ShortsLogic  json.RawMessage `json:"shorts_logic"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var m Monetization
	ok, legacyM, err := decodeNested(aux.Monetization, &m)
	if err != nil {
		return fmt.Errorf("monetization: %w", err)
	}
	p.Monetization = nil
	if ok {
		p.Monetization = &m
	}

	var s ShortsLogic
	ok, legacyS, err := decodeNested(aux.ShortsLogic, &s)
	if err != nil {
		return fmt.Errorf("shorts_logic: %w", err)
	}
	p.ShortsLogic = nil
	if ok {
		p.ShortsLogic = &s
	}

	p.legacy = legacyM || legacyS
	return nil
}

// decodeNested decodes raw into dst. A string value is treated as
// legacy JSON text; text that does not parse is dropped rather than
// failing the whole profile.
func decodeNested(raw json.RawMessage, dst any) (ok, legacy bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false, false, nil
	}
	if raw[0] != '"' {
		if err := json.Unmarshal(raw, dst); err != nil {
			return false, false, err
		}
		return true, false, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return false, false, err
	}
	if strings.TrimSpace(text) == "" {
		return false, true, nil
	}
	if err := json.Unmarshal([]byte(text), dst); err != nil {
		return false, true, nil
	}
	return true, true, nil
}

// NeedsMigration reports whether the profile was decoded from the
// legacy text-encoded form.
func (p *Profile) NeedsMigration() bool { return p.legacy }

// Usable reports whether a fetched profile carries real data. Only
// goals, positioning and full_context are consulted.
func (p *Profile) Usable() bool {
	return p.Goals != "" || p.Positioning != "" || p.FullContext != ""
}

// fillFrom copies nested structures from def wherever p lacks them.
func (p *Profile) fillFrom(def Profile) {
	if p.Monetization == nil {
		p.Monetization = def.Monetization
	}
	if p.ShortsLogic == nil {
		p.ShortsLogic = def.ShortsLogic
	}
	if p.ContentArchitecture == nil {
		p.ContentArchitecture = def.ContentArchitecture
	}
}

// filledThreshold is the length, in characters, a field must exceed to
// count as filled.
const filledThreshold = 20

// Field is one of the scored text fields.
type Field struct {
	Name  string
	Value string
}

// Fields returns the seven scored text fields in dashboard order.
func (p *Profile) Fields() []Field {
	return []Field{
		{"goals", p.Goals},
		{"positioning", p.Positioning},
		{"target_audience", p.TargetAudience},
		{"customer_pains", p.CustomerPains},
		{"triggers", p.Triggers},
		{"cases", p.Cases},
		{"full_context", p.FullContext},
	}
}

// Completeness returns the percentage of scored fields longer than 20
// characters, rounded to the nearest integer. Length is counted in
// UTF-16 code units, so a character outside the BMP counts twice, the
// same as in the web planner.
func Completeness(p Profile) int {
	fields := p.Fields()
	filled := 0
	for _, f := range fields {
		if len(utf16.Encode([]rune(f.Value))) > filledThreshold {
			filled++
		}
	}
	return int(math.Round(100 * float64(filled) / float64(len(fields))))
}

// ContextText builds the chat context block from the profile's
// positioning, audience, pains and triggers.
func (p *Profile) ContextText() string {
	section := func(b *strings.Builder, heading, value, missing string) {
		if value == "" {
			value = missing
		}
		fmt.Fprintf(b, "# %s:\n%s\n\n", heading, value)
	}
	var b strings.Builder
	section(&b, "YOUR POSITIONING (who I am)", p.Positioning, "Not specified")
	section(&b, "YOUR AUDIENCE", p.TargetAudience, "Not specified")
	section(&b, "CUSTOMER PAINS", p.CustomerPains, "Not specified")
	section(&b, "TRIGGERS", p.Triggers, "Not specified")
	return strings.TrimSpace(b.String())
}

const defaultFullContext = `WE ARE BUILDING: an AI producer that understands the stage, the bottleneck and which content sells.
LOGIC: 1. Goal -> 2. Positioning -> 3. Audience -> 4. Pains -> 5. Triggers -> 6. Architecture -> 7. Plan -> 8. Viral topics -> 9. Scripts -> 10. Recommendations.

ABOUT ME:
- Software engineer designing multimodal RAG systems.
- Cases: e-commerce (conversion), voice AI (car service, full cycle), edtech (RAG over books), ML & CV (plants).
- Assets: YouTube, school, course.
- Goal: 3-5 clients in 30-60 days.
- Ready for: a Short every day, 1-2 long videos a month.

SHORTS STRUCTURE:
- Hook (3 sec) -> Pain -> Insight -> Polarization -> CTA`

// Default returns the built-in profile used when the server has nothing
// usable. Each call returns a fresh copy.
func Default() Profile {
	return Profile{
		Goals:          "Land the first 3-5 clients for the flagship course within 30-60 days. KPI: 5 calls a month.",
		Positioning:    "Hands-on AI architect. Shows real RAG system architecture instead of info noise.",
		TargetAudience: "Junior developers, tech leads, IT founders. Pains: no roadmap, fear of falling behind.",
		CustomerPains:  "Logical (roadmap, stack), emotional (fear of falling behind), hidden (money, status).",
		Triggers:       "Fear of the future, money, polarization, authority, breaking illusions.",
		Cases:          "- E-commerce: neuro-expert\n- Voice AI: car service agent\n- EdTech: RAG over books\n- ML & CV: plant analysis",
		FullContext:    defaultFullContext,
		ShortsLogic: &ShortsLogic{
			Structure:            []string{"Hook (3 sec)", "Pain", "Insight", "Polarization", "CTA"},
			HookExamples:         []string{"You will never become an AI engineer"},
			PolarizationExamples: []string{"Cheap courses are garbage"},
		},
		Monetization: &Monetization{
			Product: "Flagship course / personal mentoring",
			Price:   "50 000 RUB",
			Assets:  []string{"YouTube", "School"},
			Model:   "Limited enrollment",
		},
		ContentArchitecture: &ContentMix{Viral: 40, Expert: 30, Case: 20, Warmup: 10},
	}
}
