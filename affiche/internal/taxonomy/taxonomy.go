// Package taxonomy infers a category and genre for a catalog record from its
// free text. Classification is an ordered first-match keyword scan: category
// rules are tried in sequence and the first rule whose keyword occurs in the
// text wins, so rule order is significant and ties cannot happen. A genre is
// only derived for categories that carry one (festival and music by default).
//
// The keyword tables are immutable configuration injected at construction;
// tests substitute alternate taxonomies by passing their own Config.
package taxonomy

import "strings"

// Rule pairs a label with the keywords that select it. Keywords are matched
// as lowercase substrings of the combined record text.
type Rule struct {
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
}

// Config holds the ordered rule tables.
type Config struct {
	// Categories are tried in order; first match wins.
	Categories []Rule `yaml:"categories"`
	// DefaultCategory applies when no category rule matches.
	DefaultCategory string `yaml:"default_category"`
	// GenreCategories lists the categories for which a genre is derived.
	GenreCategories []string `yaml:"genre_categories"`
	// Genres are tried in order; first match wins.
	Genres []Rule `yaml:"genres"`
	// DefaultGenre applies when a genre is derived but no rule matches.
	DefaultGenre string `yaml:"default_genre"`
}

func (c *Config) defaults() {
	if len(c.Categories) == 0 {
		c.Categories = []Rule{
			{Label: "festival", Keywords: []string{"fest", "festival"}},
			{Label: "comedy", Keywords: []string{"comedy", "comedian", "stand-up", "standup"}},
			{Label: "theater", Keywords: []string{"theater", "theatre", "play", "musical", "broadway"}},
			{Label: "sports", Keywords: []string{"game", "match", "tournament", "sports"}},
		}
	}
	if c.DefaultCategory == "" {
		c.DefaultCategory = "music"
	}
	if len(c.GenreCategories) == 0 {
		c.GenreCategories = []string{"festival", "music"}
	}
	if len(c.Genres) == 0 {
		c.Genres = []Rule{
			{Label: "country", Keywords: []string{"country", "honky tonk", "twang", "bluegrass", "americana"}},
			{Label: "rock", Keywords: []string{"rock", "punk", "metal", "alternative", "indie rock"}},
			{Label: "jazz", Keywords: []string{"jazz", "swing", "bebop"}},
			{Label: "blues", Keywords: []string{"blues", "rhythm and blues", "r&b"}},
			{Label: "electronic", Keywords: []string{"electronic", "edm", "house", "techno", "dubstep"}},
			{Label: "hip-hop", Keywords: []string{"hip hop", "hip-hop", " rap ", " trap "}},
			{Label: "folk", Keywords: []string{"folk", "acoustic", "singer-songwriter"}},
			{Label: "pop", Keywords: []string{"pop", "top 40"}},
			{Label: "classical", Keywords: []string{"classical", "orchestra", "symphony"}},
		}
	}
	if c.DefaultGenre == "" {
		c.DefaultGenre = "general"
	}
}

// Classifier performs keyword classification. Safe for concurrent use.
type Classifier struct {
	cfg    Config
	genred map[string]bool
}

// New creates a Classifier. A zero Config yields the built-in taxonomy.
func New(cfg Config) *Classifier {
	cfg.defaults()
	genred := make(map[string]bool, len(cfg.GenreCategories))
	for _, cat := range cfg.GenreCategories {
		genred[cat] = true
	}
	return &Classifier{cfg: cfg, genred: genred}
}

// Classify returns the (category, genre) pair for a record. The inputs are
// concatenated and lowercased before matching. Genre is empty for categories
// outside GenreCategories.
func (c *Classifier) Classify(name, description, venue string) (category, genre string) {
	combined := strings.ToLower(name + " " + description + " " + venue)

	category = c.cfg.DefaultCategory
	for _, rule := range c.cfg.Categories {
		if matchAny(combined, rule.Keywords) {
			category = rule.Label
			break
		}
	}

	if !c.genred[category] {
		return category, ""
	}

	genre = c.cfg.DefaultGenre
	for _, rule := range c.cfg.Genres {
		if matchAny(combined, rule.Keywords) {
			genre = rule.Label
			break
		}
	}
	return category, genre
}

func matchAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
