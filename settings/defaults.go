package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const DefaultTranslatorModule = "libretranslate"

// Defaults is the configuration a fresh install starts with.
func Defaults() Tree {
	return Tree{
		Language:         "en",
		TranslatorModule: DefaultTranslatorModule,
		Scheduler: Scheduler{
			UseCache:                        true,
			TranslateRetryAttemptLimit:      2,
			IsAllowDirectTranslateBadChunks: true,
			DirectTranslateLength:           0,
			TranslatePoolDelay:              300,
			ChunkSizeForInstantTranslate:    0,
		},
		Cache: Cache{
			IgnoreCase: true,
		},
		AppIcon: AppIcon{
			Light: "#6f6f6f",
			Dark:  "#d0d0d0",
		},
		TextTranslator: TextTranslator{
			RememberText: true,
			SpellCheck:   true,
		},
		SelectTranslator: SelectTranslator{
			Enabled:              true,
			Mode:                 ModePopupButton,
			ZIndex:               999999,
			RememberDirection:    false,
			QuickTranslate:       false,
			ShowOriginalText:     true,
			ShowOnceForSelection: true,
		},
		PageTranslator: PageTranslator{
			LazyTranslate:           true,
			DetectLanguageByContent: true,
			OriginalTextPopup:       false,
			TranslateTitles:         true,
		},
		ContentScript: ContentScript{
			SelectTranslator: ContentScriptSelectTranslator{
				Enabled:                   true,
				DisableWhileTranslatePage: true,
			},
		},
		History: History{
			Enabled: false,
		},
	}
}

// LoadDefaults overlays the YAML or TOML file at path on Defaults.
// Sections missing from the file keep their built in values.
// An empty path returns Defaults unchanged.
func LoadDefaults(path string) (Tree, error) {
	tree := Defaults()
	if strings.TrimSpace(path) == "" {
		return tree, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return tree, fmt.Errorf("could not read settings defaults %q: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &tree)
	case ".toml":
		err = toml.Unmarshal(raw, &tree)
	default:
		return Defaults(), fmt.Errorf("unsupported settings defaults format %q", filepath.Ext(path))
	}
	if err != nil {
		return Defaults(), fmt.Errorf("could not parse settings defaults %q: %w", path, err)
	}

	tree.Revision = 0
	return tree, nil
}

// ParseSection maps a section name to its Section.
func ParseSection(name string) (Section, bool) {
	for _, section := range AllSections() {
		if string(section) == name {
			return section, true
		}
	}
	return "", false
}
