package chant_test

import (
	"testing"
	"time"

	"github.com/MrWong99/templeguardian/pkg/chant"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"5:30", 330, false},
		{"0:05", 5, false},
		{"12:30", 750, false},
		{" 3:45 ", 225, false},
		{"330", 0, true},
		{"a:10", 0, true},
		{"1:60", 0, true},
		{"-1:00", 0, true},
	}
	for _, tt := range tests {
		got, err := chant.ParseDuration(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormatTime(t *testing.T) {
	for in, want := range map[int]string{0: "0:00", 5: "0:05", 65: "1:05", 750: "12:30", -3: "0:00"} {
		if got := chant.FormatTime(in); got != want {
			t.Errorf("FormatTime(%d) = %q, want %q", in, got, want)
		}
	}
	if got := chant.FormatDuration(90*time.Second + 900*time.Millisecond); got != "1:30" {
		t.Errorf("FormatDuration = %q, want 1:30", got)
	}
}

func TestTrack_Validate(t *testing.T) {
	good := chant.Track{ID: "x", Title: "X", Duration: "1:00", Source: chant.Source{Recipe: chant.RecipeFor("x")}}
	if err := good.Validate(); err != nil {
		t.Errorf("Validate(good) = %v", err)
	}
	stream := chant.Track{ID: "y", Title: "Y", Duration: "1:00", Source: chant.Source{URL: "http://example/a.wav"}}
	if err := stream.Validate(); err != nil {
		t.Errorf("Validate(stream) = %v", err)
	}
	bad := chant.Track{Duration: "soon"}
	if err := bad.Validate(); err == nil {
		t.Error("Validate(bad) = nil, want error")
	}
}

func TestDefaultCatalog(t *testing.T) {
	cat := chant.DefaultCatalog()
	if len(cat) != 5 {
		t.Fatalf("len = %d, want 5", len(cat))
	}
	if cat[0].ID != "om-namah-shivaya" {
		t.Errorf("first track = %q, want om-namah-shivaya", cat[0].ID)
	}
	for _, tr := range cat {
		if err := tr.Validate(); err != nil {
			t.Errorf("default track invalid: %v", err)
		}
		if tr.Source.Recipe.Seconds != chant.DefaultRecipeSeconds {
			t.Errorf("%s recipe length = %v, want %d", tr.ID, tr.Source.Recipe.Seconds, chant.DefaultRecipeSeconds)
		}
	}
	if f := cat[4].Source.Recipe.Frequency; f != 341.3 {
		t.Errorf("vishnu frequency = %v, want 341.3", f)
	}

	cat[0].Title = "mutated"
	if chant.DefaultCatalog()[0].Title == "mutated" {
		t.Error("DefaultCatalog returned shared storage")
	}
}

func TestRecipeFor_Unknown(t *testing.T) {
	if r := chant.RecipeFor("unknown"); r.Frequency != 136.1 || r.Seconds != 30 {
		t.Errorf("RecipeFor(unknown) = %+v", r)
	}
}

func TestWithDefaultRecipes(t *testing.T) {
	in := []chant.Track{
		{ID: "hare-krishna"},
		{ID: "custom", Source: chant.Source{Recipe: chant.Recipe{Frequency: 200}}},
		{ID: "long", Source: chant.Source{Recipe: chant.Recipe{Seconds: 90}}},
		{ID: "remote", Source: chant.Source{URL: "http://example/a.wav"}},
	}
	out := chant.WithDefaultRecipes(in)

	if r := out[0].Source.Recipe; r.Frequency != 144 || r.Seconds != 30 {
		t.Errorf("hare-krishna recipe = %+v", r)
	}
	if r := out[1].Source.Recipe; r.Frequency != 200 || r.Seconds != 30 {
		t.Errorf("custom recipe = %+v", r)
	}
	if r := out[2].Source.Recipe; r.Frequency != 136.1 || r.Seconds != 90 {
		t.Errorf("long recipe = %+v", r)
	}
	if r := out[3].Source.Recipe; r.Frequency != 0 {
		t.Errorf("remote source got a recipe: %+v", r)
	}
	if in[0].Source.Recipe.Frequency != 0 {
		t.Error("input was modified")
	}
}
