package translate

import "sort"

// coreLanguages is the always-available target set.
var coreLanguages = map[string]string{
	"en": "English",
	"fr": "French",
	"no": "Norwegian",
	"es": "Spanish",
	"sv": "Swedish",
	"da": "Danish",
	"de": "German",
}

// extendedLanguages are enabled via configuration on top of the core set.
var extendedLanguages = map[string]string{
	"it": "Italian",
	"pt": "Portuguese",
	"nl": "Dutch",
	"ru": "Russian",
	"zh": "Chinese",
	"ja": "Japanese",
	"ko": "Korean",
	"ar": "Arabic",
	"hi": "Hindi",
	"tr": "Turkish",
	"pl": "Polish",
}

func languageTable(extended bool) map[string]string {
	table := make(map[string]string, len(coreLanguages)+len(extendedLanguages))
	for code, name := range coreLanguages {
		table[code] = name
	}
	if extended {
		for code, name := range extendedLanguages {
			table[code] = name
		}
	}
	return table
}

// SupportedLanguages returns the gateway's language codes in sorted order.
func (g *Gateway) SupportedLanguages() []string {
	codes := make([]string, 0, len(g.languages))
	for code := range g.languages {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
