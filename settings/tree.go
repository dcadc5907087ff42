package settings

// Section names a top level subtree of the configuration.
type Section string

const (
	SectionLanguage         Section = "language"
	SectionTranslatorModule Section = "translatorModule"
	SectionScheduler        Section = "scheduler"
	SectionCache            Section = "cache"
	SectionAppIcon          Section = "appIcon"
	SectionTextTranslator   Section = "textTranslator"
	SectionSelectTranslator Section = "selectTranslator"
	SectionPageTranslator   Section = "pageTranslator"
	SectionContentScript    Section = "contentscript"
	SectionHistory          Section = "history"
)

// AllSections lists every section in declaration order.
func AllSections() []Section {
	return []Section{
		SectionLanguage,
		SectionTranslatorModule,
		SectionScheduler,
		SectionCache,
		SectionAppIcon,
		SectionTextTranslator,
		SectionSelectTranslator,
		SectionPageTranslator,
		SectionContentScript,
		SectionHistory,
	}
}

type Scheduler struct {
	UseCache                        bool `json:"useCache"                        yaml:"useCache"                        toml:"useCache"`
	TranslateRetryAttemptLimit      int  `json:"translateRetryAttemptLimit"      yaml:"translateRetryAttemptLimit"      toml:"translateRetryAttemptLimit"`
	IsAllowDirectTranslateBadChunks bool `json:"isAllowDirectTranslateBadChunks" yaml:"isAllowDirectTranslateBadChunks" toml:"isAllowDirectTranslateBadChunks"`
	DirectTranslateLength           int  `json:"directTranslateLength"           yaml:"directTranslateLength"           toml:"directTranslateLength"`
	TranslatePoolDelay              int  `json:"translatePoolDelay"              yaml:"translatePoolDelay"              toml:"translatePoolDelay"`
	ChunkSizeForInstantTranslate    int  `json:"chunkSizeForInstantTranslate"    yaml:"chunkSizeForInstantTranslate"    toml:"chunkSizeForInstantTranslate"`
}

type Cache struct {
	IgnoreCase bool `json:"ignoreCase" yaml:"ignoreCase" toml:"ignoreCase"`
}

type AppIcon struct {
	Light string `json:"light" yaml:"light" toml:"light"`
	Dark  string `json:"dark"  yaml:"dark"  toml:"dark"`
}

type TextTranslator struct {
	RememberText bool `json:"rememberText" yaml:"rememberText" toml:"rememberText"`
	SpellCheck   bool `json:"spellCheck"   yaml:"spellCheck"   toml:"spellCheck"`
}

// Selection widget modes.
const (
	ModeQuickTranslate = "quickTranslate"
	ModeContextMenu    = "contextMenu"
	ModePopupButton    = "popupButton"
)

type SelectTranslator struct {
	Enabled              bool   `json:"enabled"              yaml:"enabled"              toml:"enabled"`
	Mode                 string `json:"mode"                 yaml:"mode"                 toml:"mode"`
	ZIndex               int    `json:"zIndex"               yaml:"zIndex"               toml:"zIndex"`
	RememberDirection    bool   `json:"rememberDirection"    yaml:"rememberDirection"    toml:"rememberDirection"`
	QuickTranslate       bool   `json:"quickTranslate"       yaml:"quickTranslate"       toml:"quickTranslate"`
	ShowOriginalText     bool   `json:"showOriginalText"     yaml:"showOriginalText"     toml:"showOriginalText"`
	ShowOnceForSelection bool   `json:"showOnceForSelection" yaml:"showOnceForSelection" toml:"showOnceForSelection"`
}

type PageTranslator struct {
	LazyTranslate           bool `json:"lazyTranslate"           yaml:"lazyTranslate"           toml:"lazyTranslate"`
	DetectLanguageByContent bool `json:"detectLanguageByContent" yaml:"detectLanguageByContent" toml:"detectLanguageByContent"`
	OriginalTextPopup       bool `json:"originalTextPopup"       yaml:"originalTextPopup"       toml:"originalTextPopup"`
	TranslateTitles         bool `json:"translateTitles"         yaml:"translateTitles"         toml:"translateTitles"`
}

type ContentScriptSelectTranslator struct {
	Enabled                   bool `json:"enabled"                   yaml:"enabled"                   toml:"enabled"`
	DisableWhileTranslatePage bool `json:"disableWhileTranslatePage" yaml:"disableWhileTranslatePage" toml:"disableWhileTranslatePage"`
}

type ContentScript struct {
	SelectTranslator ContentScriptSelectTranslator `json:"selectTranslator" yaml:"selectTranslator" toml:"selectTranslator"`
}

type History struct {
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`
}

// Tree is an immutable configuration snapshot. Every section is a
// comparable value, so sections are compared with ==.
type Tree struct {
	Revision uint64 `json:"revision" yaml:"-" toml:"-"`

	Language         string           `json:"language"         yaml:"language"         toml:"language"`
	TranslatorModule string           `json:"translatorModule" yaml:"translatorModule" toml:"translatorModule"`
	Scheduler        Scheduler        `json:"scheduler"        yaml:"scheduler"        toml:"scheduler"`
	Cache            Cache            `json:"cache"            yaml:"cache"            toml:"cache"`
	AppIcon          AppIcon          `json:"appIcon"          yaml:"appIcon"          toml:"appIcon"`
	TextTranslator   TextTranslator   `json:"textTranslator"   yaml:"textTranslator"   toml:"textTranslator"`
	SelectTranslator SelectTranslator `json:"selectTranslator" yaml:"selectTranslator" toml:"selectTranslator"`
	PageTranslator   PageTranslator   `json:"pageTranslator"   yaml:"pageTranslator"   toml:"pageTranslator"`
	ContentScript    ContentScript    `json:"contentscript"    yaml:"contentscript"    toml:"contentscript"`
	History          History          `json:"history"          yaml:"history"          toml:"history"`
}

// Partial replaces every non nil section wholesale.
type Partial struct {
	Language         *string           `json:"language,omitempty"`
	TranslatorModule *string           `json:"translatorModule,omitempty"`
	Scheduler        *Scheduler        `json:"scheduler,omitempty"`
	Cache            *Cache            `json:"cache,omitempty"`
	AppIcon          *AppIcon          `json:"appIcon,omitempty"`
	TextTranslator   *TextTranslator   `json:"textTranslator,omitempty"`
	SelectTranslator *SelectTranslator `json:"selectTranslator,omitempty"`
	PageTranslator   *PageTranslator   `json:"pageTranslator,omitempty"`
	ContentScript    *ContentScript    `json:"contentscript,omitempty"`
	History          *History          `json:"history,omitempty"`
}

// Merge returns a copy of t with the sections set in p replaced.
func (t Tree) Merge(p Partial) Tree {
	next := t
	if p.Language != nil {
		next.Language = *p.Language
	}
	if p.TranslatorModule != nil {
		next.TranslatorModule = *p.TranslatorModule
	}
	if p.Scheduler != nil {
		next.Scheduler = *p.Scheduler
	}
	if p.Cache != nil {
		next.Cache = *p.Cache
	}
	if p.AppIcon != nil {
		next.AppIcon = *p.AppIcon
	}
	if p.TextTranslator != nil {
		next.TextTranslator = *p.TextTranslator
	}
	if p.SelectTranslator != nil {
		next.SelectTranslator = *p.SelectTranslator
	}
	if p.PageTranslator != nil {
		next.PageTranslator = *p.PageTranslator
	}
	if p.ContentScript != nil {
		next.ContentScript = *p.ContentScript
	}
	if p.History != nil {
		next.History = *p.History
	}
	return next
}

// Differs reports whether section holds different values in t and other.
func (t Tree) Differs(other Tree, section Section) bool {
	switch section {
	case SectionLanguage:
		return t.Language != other.Language
	case SectionTranslatorModule:
		return t.TranslatorModule != other.TranslatorModule
	case SectionScheduler:
		return t.Scheduler != other.Scheduler
	case SectionCache:
		return t.Cache != other.Cache
	case SectionAppIcon:
		return t.AppIcon != other.AppIcon
	case SectionTextTranslator:
		return t.TextTranslator != other.TextTranslator
	case SectionSelectTranslator:
		return t.SelectTranslator != other.SelectTranslator
	case SectionPageTranslator:
		return t.PageTranslator != other.PageTranslator
	case SectionContentScript:
		return t.ContentScript != other.ContentScript
	case SectionHistory:
		return t.History != other.History
	}
	return false
}

// Changed lists the sections whose values differ between t and prev.
func (t Tree) Changed(prev Tree) []Section {
	var changed []Section
	for _, section := range AllSections() {
		if t.Differs(prev, section) {
			changed = append(changed, section)
		}
	}
	return changed
}

// Full returns a partial that replaces every section with the value in t.
func (t Tree) Full() Partial {
	return Partial{
		Language:         &t.Language,
		TranslatorModule: &t.TranslatorModule,
		Scheduler:        &t.Scheduler,
		Cache:            &t.Cache,
		AppIcon:          &t.AppIcon,
		TextTranslator:   &t.TextTranslator,
		SelectTranslator: &t.SelectTranslator,
		PageTranslator:   &t.PageTranslator,
		ContentScript:    &t.ContentScript,
		History:          &t.History,
	}
}
