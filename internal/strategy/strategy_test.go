package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type fakeRemote struct {
	profile *Profile
	getErr  error
	saveErr error
	saved   []Profile
}

func (f *fakeRemote) GetStrategy(context.Context) (*Profile, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.profile, nil
}

func (f *fakeRemote) SaveStrategy(_ context.Context, p Profile) error {
	f.saved = append(f.saved, p)
	return f.saveErr
}

func TestCompleteness(t *testing.T) {
	long := strings.Repeat("x", 21)
	short := strings.Repeat("x", 20)

	tests := []struct {
		name    string
		profile Profile
		want    int
	}{
		{"empty", Profile{}, 0},
		{"all at threshold", Profile{
			Goals: short, Positioning: short, TargetAudience: short, CustomerPains: short,
			Triggers: short, Cases: short, FullContext: short,
		}, 0},
		{"all filled", Profile{
			Goals: long, Positioning: long, TargetAudience: long, CustomerPains: long,
			Triggers: long, Cases: long, FullContext: long,
		}, 100},
		{"three of seven", Profile{Goals: long, Cases: long, FullContext: long, Triggers: short}, 43},
		{"one of seven", Profile{Positioning: long}, 14},
		{"multibyte counted as characters", Profile{Goals: strings.Repeat("я", 20)}, 0},
		{"emoji counted as two units", Profile{Goals: strings.Repeat("x", 19) + "🎬"}, 14},
		{"default", Default(), 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Completeness(tt.profile); got != tt.want {
				t.Errorf("Completeness() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestContentMix(t *testing.T) {
	mix := Default().ContentArchitecture
	if mix.Sum() != 100 || !mix.Balanced() {
		t.Errorf("default mix = %+v, want balanced", mix)
	}
	skewed := ContentMix{Viral: 90, Expert: 30}
	if skewed.Balanced() {
		t.Error("120% mix reported balanced")
	}
}

func TestUnmarshal_LegacyStringFields(t *testing.T) {
	raw := `{
		"goals": "grow",
		"monetization": "{\"product\":\"Course\",\"price\":\"100\",\"assets\":[\"YouTube\"],\"model\":\"cohort\"}",
		"shorts_logic": {"structure":["Hook","CTA"]},
		"content_architecture": {"viral":50,"expert":50,"case":0,"warmup":0}
	}`
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatal(err)
	}
	if !p.NeedsMigration() {
		t.Error("legacy monetization not flagged")
	}
	if p.Monetization == nil || p.Monetization.Product != "Course" || len(p.Monetization.Assets) != 1 {
		t.Errorf("monetization = %+v", p.Monetization)
	}
	if p.ShortsLogic == nil || len(p.ShortsLogic.Structure) != 2 {
		t.Errorf("shorts logic = %+v", p.ShortsLogic)
	}

	out, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"monetization":{"product":"Course"`) {
		t.Errorf("monetization not written structured: %s", out)
	}
}

func TestUnmarshal_StructuredIsNotLegacy(t *testing.T) {
	var p Profile
	if err := json.Unmarshal([]byte(`{"goals":"g","monetization":{"product":"p"},"shorts_logic":null}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.NeedsMigration() {
		t.Error("structured profile flagged for migration")
	}
	if p.ShortsLogic != nil {
		t.Errorf("null shorts logic decoded as %+v", p.ShortsLogic)
	}
}

func TestUnmarshal_UnparseableLegacyTextDropped(t *testing.T) {
	var p Profile
	if err := json.Unmarshal([]byte(`{"goals":"g","monetization":"sell courses"}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.Monetization != nil {
		t.Errorf("monetization = %+v, want nil", p.Monetization)
	}
	if !p.NeedsMigration() {
		t.Error("text monetization not flagged")
	}
}

func TestLoad_FallsBackToDefault(t *testing.T) {
	tests := []struct {
		name    string
		profile *Profile
	}{
		{"nil", nil},
		{"empty", &Profile{}},
		{"only unscored-for-usability fields", &Profile{Cases: "many", Triggers: "fear"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(&fakeRemote{profile: tt.profile}, nil)
			got, err := store.Load(t.Context())
			if err != nil {
				t.Fatal(err)
			}
			if got.Goals != Default().Goals {
				t.Errorf("Load() did not return the default profile: %+v", got)
			}
		})
	}
}

func TestLoad_NetworkErrorReturnsDefaultAndError(t *testing.T) {
	boom := errors.New("connection refused")
	store := NewStore(&fakeRemote{getErr: boom}, nil)
	got, err := store.Load(t.Context())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
	if got.Positioning != Default().Positioning {
		t.Error("default profile not returned on error")
	}
}

func TestLoad_FillsMissingNested(t *testing.T) {
	remote := &fakeRemote{profile: &Profile{Positioning: "mine"}}
	got, err := NewStore(remote, nil).Load(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if got.Positioning != "mine" {
		t.Errorf("positioning = %q", got.Positioning)
	}
	if got.ContentArchitecture == nil || got.ContentArchitecture.Viral != 40 {
		t.Errorf("content mix not filled: %+v", got.ContentArchitecture)
	}
	if len(remote.saved) != 0 {
		t.Errorf("structured profile saved back %d times", len(remote.saved))
	}
}

func TestLoad_MigratesLegacyOnce(t *testing.T) {
	var p Profile
	if err := json.Unmarshal([]byte(`{"goals":"g","monetization":"{\"product\":\"Course\"}"}`), &p); err != nil {
		t.Fatal(err)
	}
	remote := &fakeRemote{profile: &p}
	got, err := NewStore(remote, nil).Load(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(remote.saved) != 1 {
		t.Fatalf("saved %d times, want 1", len(remote.saved))
	}
	if remote.saved[0].Monetization.Product != "Course" {
		t.Errorf("migrated monetization = %+v", remote.saved[0].Monetization)
	}
	if got.NeedsMigration() {
		t.Error("returned profile still flagged")
	}
}

func TestLoad_MigrationFailureIsNotFatal(t *testing.T) {
	var p Profile
	if err := json.Unmarshal([]byte(`{"goals":"g","shorts_logic":"{\"structure\":[\"Hook\"]}"}`), &p); err != nil {
		t.Fatal(err)
	}
	remote := &fakeRemote{profile: &p, saveErr: errors.New("503")}
	got, err := NewStore(remote, nil).Load(t.Context())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.ShortsLogic == nil || got.ShortsLogic.Structure[0] != "Hook" {
		t.Errorf("shorts logic = %+v", got.ShortsLogic)
	}
}

func TestSave(t *testing.T) {
	remote := &fakeRemote{}
	store := NewStore(remote, nil)
	if err := store.Save(t.Context(), Default()); err != nil {
		t.Fatal(err)
	}
	if len(remote.saved) != 1 {
		t.Fatalf("saved %d", len(remote.saved))
	}

	remote.saveErr = errors.New("rejected")
	if err := store.Save(t.Context(), Default()); err == nil {
		t.Error("Save() should surface remote error")
	}
}

func TestContextText(t *testing.T) {
	p := Profile{Positioning: "AI architect", Triggers: "money"}
	got := p.ContextText()
	for _, want := range []string{
		"# YOUR POSITIONING (who I am):\nAI architect",
		"# YOUR AUDIENCE:\nNot specified",
		"# TRIGGERS:\nmoney",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("ContextText() missing %q:\n%s", want, got)
		}
	}
	if strings.HasSuffix(got, "\n") {
		t.Error("ContextText() should be trimmed")
	}
}
