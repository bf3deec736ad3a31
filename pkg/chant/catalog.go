package chant

import "slices"

// DefaultRecipeSeconds is the length of a synthesized chant when a recipe
// does not set one.
const DefaultRecipeSeconds = 30

// defaultFrequency is used for ids missing from [recipeFrequencies].
const defaultFrequency = 136.1

// recipeFrequencies maps well-known chant ids to their base tone in Hz.
var recipeFrequencies = map[string]float64{
	"om-namah-shivaya":    136.1,  // "Om" tone
	"hare-krishna":        144,    // D
	"om-gam-ganapataye":   128,    // C
	"aditya-hridayam":     126.22, // "sun" tone
	"vishnu-sahasranamam": 341.3,  // heart chakra
}

// RecipeFor returns the default synthesis recipe for a chant id.
func RecipeFor(id string) Recipe {
	f, ok := recipeFrequencies[id]
	if !ok {
		f = defaultFrequency
	}
	return Recipe{Frequency: f, Seconds: DefaultRecipeSeconds}
}

var defaultCatalog = []Track{
	{ID: "om-namah-shivaya", Title: "Om Namah Shivaya", Deity: "Lord Shiva", Duration: "5:30"},
	{ID: "hare-krishna", Title: "Hare Krishna Maha Mantra", Deity: "Lord Krishna", Duration: "8:15"},
	{ID: "om-gam-ganapataye", Title: "Om Gam Ganapataye Namaha", Deity: "Lord Ganesha", Duration: "3:45"},
	{ID: "aditya-hridayam", Title: "Aditya Hridayam", Deity: "Surya Dev", Duration: "12:30"},
	{ID: "vishnu-sahasranamam", Title: "Vishnu Sahasranamam (Short)", Deity: "Lord Vishnu", Duration: "7:20"},
}

// DefaultCatalog returns a fresh copy of the built-in chant catalog with a
// synthesis recipe attached to every track. The first entry doubles as the
// playlist fallback.
func DefaultCatalog() []Track {
	out := slices.Clone(defaultCatalog)
	for i := range out {
		out[i].Source.Recipe = RecipeFor(out[i].ID)
	}
	return out
}

// WithDefaultRecipes fills in a recipe for every track that has neither a
// URL nor a usable recipe frequency. The input is not modified.
func WithDefaultRecipes(tracks []Track) []Track {
	out := slices.Clone(tracks)
	for i := range out {
		src := &out[i].Source
		if src.IsStream() {
			continue
		}
		if src.Recipe.Frequency <= 0 {
			seconds := src.Recipe.Seconds
			src.Recipe = RecipeFor(out[i].ID)
			if seconds > 0 {
				src.Recipe.Seconds = seconds
			}
		}
		if src.Recipe.Seconds <= 0 {
			src.Recipe.Seconds = DefaultRecipeSeconds
		}
	}
	return out
}
