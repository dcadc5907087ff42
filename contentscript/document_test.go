package contentscript_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pitabwire/autotranslate/contentscript"
	"github.com/pitabwire/autotranslate/settings"
)

// echoCaller answers translate calls with "[to] text" and can fail on one text.
type echoCaller struct {
	failOn string
	calls  []map[string]string
}

func (c *echoCaller) Call(_ context.Context, operation string, payload any, result any) error {
	if operation != contentscript.OpTranslate {
		return fmt.Errorf("unexpected operation %s", operation)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var req map[string]string
	if err = json.Unmarshal(raw, &req); err != nil {
		return err
	}
	c.calls = append(c.calls, req)
	if req["text"] == c.failOn {
		return errors.New("translation failed")
	}
	out, ok := result.(*string)
	if !ok {
		return fmt.Errorf("unexpected result %T", result)
	}
	*out = "[" + req["to"] + "] " + req["text"]
	return nil
}

func TestPageTranslatorRunAndRestore(t *testing.T) {
	ctx := context.Background()
	doc := contentscript.NewDocument("example.org", "de-DE", "Titel", "Hallo", "Welt")
	caller := &echoCaller{}
	page := contentscript.NewPageTranslator(doc, caller)
	page.UpdateConfig(settings.PageTranslator{TranslateTitles: true})

	require.NoError(t, page.Run(ctx, "de", "en"))
	require.True(t, page.Running())
	direction, ok := page.Direction()
	require.True(t, ok)
	require.Equal(t, contentscript.Direction{From: "de", To: "en"}, direction)
	require.Equal(t, []string{"[en] Hallo", "[en] Welt"}, doc.Texts())
	require.Equal(t, "[en] Titel", doc.Title())
	require.Error(t, page.Run(ctx, "de", "fr"))

	require.NoError(t, page.Stop(ctx))
	require.False(t, page.Running())
	_, ok = page.Direction()
	require.False(t, ok)
	require.Equal(t, []string{"Hallo", "Welt"}, doc.Texts())
	require.Equal(t, "Titel", doc.Title())
}

func TestPageTranslatorKeepsTitleWhenDisabled(t *testing.T) {
	ctx := context.Background()
	doc := contentscript.NewDocument("example.org", "de", "Titel", "Hallo")
	page := contentscript.NewPageTranslator(doc, &echoCaller{})
	page.UpdateConfig(settings.PageTranslator{TranslateTitles: false})

	require.NoError(t, page.Run(ctx, "de", "en"))
	require.Equal(t, "Titel", doc.Title())
	require.Equal(t, []string{"[en] Hallo"}, doc.Texts())
}

func TestPageTranslatorFailureLeavesPage(t *testing.T) {
	ctx := context.Background()
	doc := contentscript.NewDocument("example.org", "de", "Titel", "Hallo", "Welt")
	page := contentscript.NewPageTranslator(doc, &echoCaller{failOn: "Welt"})

	require.Error(t, page.Run(ctx, "de", "en"))
	require.False(t, page.Running())
	require.Equal(t, []string{"Hallo", "Welt"}, doc.Texts())
}

func TestDocumentLanguage(t *testing.T) {
	doc := contentscript.NewDocument("example.org", "pt-br", "")
	require.Equal(t, "pt-BR", doc.Language(true))

	doc.SetContentLanguage("es")
	require.Equal(t, "es", doc.Language(true))
	require.Equal(t, "pt-BR", doc.Language(false))

	require.Empty(t, contentscript.NewDocument("example.org", "", "").Language(false))
}

func TestSelectionWidget(t *testing.T) {
	ctx := context.Background()
	caller := &echoCaller{}
	build := contentscript.NewSelectionFactory(caller, func() string { return "fr" })

	cfg := settings.Defaults().SelectTranslator
	widget, ok := build(cfg, "").(*contentscript.SelectionWidget)
	require.True(t, ok)
	require.Equal(t, cfg, widget.Settings())

	_, err := widget.Translate(ctx, "hello")
	require.ErrorIs(t, err, contentscript.ErrSelectionStopped)

	require.NoError(t, widget.Start(ctx))
	translation, err := widget.Translate(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, "[fr] hello", translation)
	require.Equal(t, "auto", caller.calls[0]["from"])

	require.NoError(t, widget.Stop(ctx))
	require.False(t, widget.Running())
}
