package language

import (
	"fmt"
	"sort"
	"strings"
)

// Profile pairs a display name with the codes the speech and translation
// services understand for that language.
type Profile struct {
	Name   string `json:"name" yaml:"name"`
	Locale string `json:"locale" yaml:"locale"` // BCP-47 recognition locale, e.g. "es-ES"
	Code   string `json:"code" yaml:"code"`     // ISO 639-1 translation code, e.g. "es"
}

// English reports whether the profile translates to/from English, i.e.
// whether a translation hop can be skipped entirely.
func (p Profile) English() bool { return p.Code == "en" }

var profiles = map[string]Profile{
	"english":    {Name: "English", Locale: "en-US", Code: "en"},
	"spanish":    {Name: "Spanish", Locale: "es-ES", Code: "es"},
	"french":     {Name: "French", Locale: "fr-FR", Code: "fr"},
	"german":     {Name: "German", Locale: "de-DE", Code: "de"},
	"italian":    {Name: "Italian", Locale: "it-IT", Code: "it"},
	"portuguese": {Name: "Portuguese", Locale: "pt-PT", Code: "pt"},
	"russian":    {Name: "Russian", Locale: "ru-RU", Code: "ru"},
	"chinese":    {Name: "Chinese", Locale: "zh-CN", Code: "zh"},
	"japanese":   {Name: "Japanese", Locale: "ja-JP", Code: "ja"},
	"korean":     {Name: "Korean", Locale: "ko-KR", Code: "ko"},
	"hindi":      {Name: "Hindi", Locale: "hi-IN", Code: "hi"},
	"arabic":     {Name: "Arabic", Locale: "ar-SA", Code: "ar"},
}

// Default returns the profile used until settings are applied.
func Default() Profile { return profiles["english"] }

// Lookup resolves a display name, case-insensitively, to its profile.
func Lookup(name string) (Profile, error) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("unknown language %q", name)
	}
	return p, nil
}

// Names returns all registered display names in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}
