package translator

import (
	"context"
	"fmt"
)

const PseudoModule = "pseudo"

// Pseudo is an offline module that tags text with the target language.
// It serves demos and tests of the translation pipeline.
func Pseudo() Module {
	return Module{
		Name: PseudoModule,
		Capabilities: Capabilities{
			SupportedLanguages: []string{"en", "fr", "de", "es", "it", "pt", "ru", "ja", "zh", "sw"},
			SupportsAutodetect: true,
		},
		Factory: func(_ context.Context) (Provider, error) {
			return ProviderFunc(func(_ context.Context, text string, _ string, to string) (string, error) {
				return fmt.Sprintf("[%s] %s", to, text), nil
			}), nil
		},
	}
}
