package background

import (
	"context"

	"github.com/pitabwire/util"

	"github.com/pitabwire/autotranslate/settings"
	"github.com/pitabwire/autotranslate/translator"
)

// watch reacts to settings changes. Callbacks run while the settings
// update lock is held, so none of them writes settings back.
func (b *Background) watch() {
	subscriptions := []settings.Unsubscribe{
		b.settings.OnUpdate(func(ctx context.Context, next settings.Tree, _ settings.Tree) {
			b.hooks.SetAppIcon(ctx, next.AppIcon)
		}, settings.SectionAppIcon),

		b.settings.OnUpdate(func(ctx context.Context, next settings.Tree, prev settings.Tree) {
			if prev.Scheduler.UseCache && !next.Scheduler.UseCache {
				if err := b.translators.ClearCache(ctx); err != nil {
					util.Log(ctx).WithError(err).Warn("could not clear translation cache")
				}
			}
		}, settings.SectionScheduler),

		b.settings.OnUpdate(func(ctx context.Context, next settings.Tree, prev settings.Tree) {
			if prev.TextTranslator.RememberText && !next.TextTranslator.RememberText {
				if err := b.hooks.ForgetText(ctx); err != nil {
					util.Log(ctx).WithError(err).Warn("could not forget remembered text")
				}
			}
		}, settings.SectionTextTranslator),

		b.settings.OnUpdate(func(ctx context.Context, next settings.Tree, _ settings.Tree) {
			enabled := next.SelectTranslator.Enabled && next.SelectTranslator.Mode == settings.ModeContextMenu
			b.hooks.ToggleContextMenu(ctx, enabled)
		}, settings.SectionSelectTranslator),

		b.settings.OnUpdate(func(ctx context.Context, next settings.Tree, _ settings.Tree) {
			if err := b.translators.SetConfig(ctx, translator.ConfigFrom(next)); err != nil {
				util.Log(ctx).WithError(err).WithField("module", next.TranslatorModule).
					Warn("could not rebuild translation scheduler")
			}
		}, settings.SectionTranslatorModule, settings.SectionScheduler, settings.SectionCache),
	}

	b.mu.Lock()
	b.unwatch = append(b.unwatch, subscriptions...)
	b.mu.Unlock()
}
