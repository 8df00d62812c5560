package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		accept   string
		expected language.Tag
	}{
		{"en-US,en;q=0.9", language.English},
		{"de-DE,de;q=0.9", language.German},
		{"fr-FR", language.English}, // Fallback
		{"", language.English},      // Empty
	}

	for _, tt := range tests {
		got := MatchLanguage(tt.accept)
		// Only the base language is compared; the matcher may keep the region.
		base, _ := got.Base()
		exp, _ := tt.expected.Base()
		assert.Equal(t, exp, base, "Accept: %s", tt.accept)
	}
}

func TestLangFromEnv(t *testing.T) {
	tests := []struct {
		env      map[string]string
		expected language.Tag
	}{
		{map[string]string{}, language.English},
		{map[string]string{"LANG": "C"}, language.English},
		{map[string]string{"LANG": "de_DE.UTF-8"}, language.German},
		{map[string]string{"LANG": "de_AT.UTF-8@euro"}, language.German},
		{map[string]string{"LANG": "de_DE.UTF-8", "LC_ALL": "en_GB.UTF-8"}, language.English},
		{map[string]string{"LC_MESSAGES": "de"}, language.German},
		{map[string]string{"LANG": "ja_JP.UTF-8"}, language.English},
		{map[string]string{"LANG": "!!"}, language.English},
	}

	for _, tt := range tests {
		got := LangFromEnv(func(k string) string { return tt.env[k] })
		base, _ := got.Base()
		exp, _ := tt.expected.Base()
		assert.Equal(t, exp, base, "env: %v", tt.env)
	}
}

func TestPrinterCatalog(t *testing.T) {
	en := NewPrinter(language.English)
	assert.Equal(t, "Drift: 1,024 to add, 3 to remove\n", en.Sprintf(MsgDrift, 1024, 3))

	de := NewPrinter(language.German)
	assert.Equal(t, "Abweichung: 1.024 hinzuzufügen, 3 zu entfernen\n", de.Sprintf(MsgDrift, 1024, 3))
}
