package domain

// Voice describes a hosted voice model usable for narration or agent speech.
type Voice struct {
	Name         string `json:"name"`
	Accent       string `json:"accent"`
	Language     string `json:"language"`
	LanguageCode string `json:"languageCode"`
	Gender       string `json:"gender"`
	Style        string `json:"style"`
	Value        string `json:"value"`
	SampleURL    string `json:"sample"`
}
