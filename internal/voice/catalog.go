// Package voice holds the static catalog of hosted voices.
package voice

import "github.com/ashureev/autopdf/internal/domain"

var catalog = []domain.Voice{
	{
		Name:         "Angelo",
		Accent:       "american",
		Language:     "English (US)",
		LanguageCode: "EN-US",
		Gender:       "male",
		Style:        "Conversational",
		Value:        "s3://voice-cloning-zero-shot/baf1ef41-36b6-428c-9bdf-50ba54682bd8/original/manifest.json",
		SampleURL:    "https://peregrine-samples.s3.us-east-1.amazonaws.com/parrot-samples/Angelo_Sample.wav",
	},
	{
		Name:         "Deedee",
		Accent:       "american",
		Language:     "English (US)",
		LanguageCode: "EN-US",
		Gender:       "female",
		Style:        "Conversational",
		Value:        "s3://voice-cloning-zero-shot/e040bd1b-f190-4bdb-83f0-75ef85b18f84/original/manifest.json",
		SampleURL:    "https://peregrine-samples.s3.us-east-1.amazonaws.com/parrot-samples/Deedee_Sample.wav",
	},
	{
		Name:         "Jennifer",
		Accent:       "american",
		Language:     "English (US)",
		LanguageCode: "EN-US",
		Gender:       "female",
		Style:        "Conversational",
		Value:        "s3://voice-cloning-zero-shot/801a663f-efd0-4254-98d0-5c175514c3e8/jennifer/manifest.json",
		SampleURL:    "https://peregrine-samples.s3.amazonaws.com/parrot-samples/jennifer.wav",
	},
}

// All returns a copy of the catalog.
func All() []domain.Voice {
	out := make([]domain.Voice, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a voice by its opaque reference.
func Lookup(value string) (domain.Voice, bool) {
	for _, v := range catalog {
		if v.Value == value {
			return v, true
		}
	}
	return domain.Voice{}, false
}

// Default returns the voice used for narration when none is requested.
func Default() domain.Voice {
	return catalog[2]
}
