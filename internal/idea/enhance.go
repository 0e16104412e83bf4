package idea

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNothingToEnhance is returned when neither a title nor content was
// given to the assistant.
var ErrNothingToEnhance = errors.New("write a title or a thought first")

// Focus values accepted by the enhancement endpoint.
const (
	FocusViralShorts = "viral_shorts"
	FocusEducational = "educational"
	FocusSales       = "sales"
	FocusStory       = "story"
)

// EnhanceRequest asks the assistant to restructure a draft.
type EnhanceRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Focus   string `json:"focus"`
	Persona string `json:"persona,omitempty"`
}

// Validate rejects a request with nothing to work on.
func (r EnhanceRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" && strings.TrimSpace(r.Content) == "" {
		return ErrNothingToEnhance
	}
	return nil
}

// Enhancement is the assistant's structured take on a draft.
type Enhancement struct {
	SuggestedTitle   string `json:"suggested_title"`
	Hook             string `json:"hook"`
	ValueProposition string `json:"value_proposition"`
	ScriptOutline    string `json:"script_outline"`
	CallToAction     string `json:"call_to_action"`
}

// Format renders the enhancement as the markdown block stored in an
// idea's content.
func (e Enhancement) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✨ **AI Suggested Title:** %s\n\n", e.SuggestedTitle)
	fmt.Fprintf(&b, "🎣 **Hook:** %s\n\n", e.Hook)
	fmt.Fprintf(&b, "💎 **Value:** %s\n\n", e.ValueProposition)
	fmt.Fprintf(&b, "📜 **Script Outline:**\n%s\n\n", e.ScriptOutline)
	fmt.Fprintf(&b, "🔥 **CTA:** %s", e.CallToAction)
	return strings.TrimSpace(b.String())
}

// ApplyTo writes the formatted enhancement into i's content and adopts
// the suggested title when i has none.
func (e Enhancement) ApplyTo(i *Idea) {
	i.Content = e.Format()
	if strings.TrimSpace(i.Title) == "" {
		i.Title = e.SuggestedTitle
	}
}

// TrendCandidate is one topic proposed by trend scouting.
type TrendCandidate struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}
