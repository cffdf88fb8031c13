package trivia

import "time"

// Region represents a map region loaded from the catalog YAML.
type Region struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Continent string   `yaml:"continent"`
	Aliases   []string `yaml:"aliases"`
}

// Catalog is the root of the region catalog file.
type catalogFile struct {
	Regions []Region `yaml:"regions"`
}

// Question is one active trivia question. The answer stays server-side
// until the player submits a guess.
type Question struct {
	ID       string    `json:"id"`
	RegionID string    `json:"region_id"`
	Region   string    `json:"region"`
	Prompt   string    `json:"prompt"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"asked_at"`
}

// Outcome is the result of a submitted guess.
type Outcome struct {
	Correct  bool   `json:"correct"`
	Expected string `json:"expected"`
	Given    string `json:"given"`
}

// Attempt is one answered question, kept in the trivia history.
type Attempt struct {
	RegionID string    `json:"region_id"`
	Prompt   string    `json:"prompt"`
	Given    string    `json:"given"`
	Expected string    `json:"expected"`
	Correct  bool      `json:"correct"`
	AskedAt  time.Time `json:"asked_at"`
}
