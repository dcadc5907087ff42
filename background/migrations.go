package background

import (
	"context"
	"fmt"
	"slices"

	"github.com/pitabwire/util"

	"github.com/pitabwire/autotranslate/cache"
	"github.com/pitabwire/autotranslate/settings"
)

const migrationVersionKey = "migrations.version"

// Migration upgrades persisted data once. Migrations are applied in order and
// the number applied is kept in the system storage.
type Migration struct {
	Name  string
	Apply func(ctx context.Context, b *Background) error
}

// DefaultMigrations are the upgrades every background context runs.
func DefaultMigrations() []Migration {
	return []Migration{
		{
			// Older installs stored a translator module that is no longer registered.
			Name: "select-registered-translator",
			Apply: func(ctx context.Context, b *Background) error {
				modules := b.translators.Modules()
				if len(modules) == 0 || slices.Contains(modules, b.settings.Get().TranslatorModule) {
					return nil
				}

				module := b.settings.Defaults().TranslatorModule
				if !slices.Contains(modules, module) {
					module = modules[0]
				}
				return b.settings.Update(ctx, settings.Partial{TranslatorModule: &module})
			},
		},
	}
}

func applyMigrations(ctx context.Context, b *Background, system cache.RawCache, migrations []Migration) error {
	applied, err := system.Increment(ctx, migrationVersionKey, 0)
	if err != nil {
		return fmt.Errorf("could not read migration version: %w", err)
	}

	for i := int(applied); i < len(migrations); i++ {
		migration := migrations[i]
		log := util.Log(ctx).WithField("migration", migration.Name)

		if err = migration.Apply(ctx, b); err != nil {
			log.WithError(err).Error("migration failed")
			return fmt.Errorf("migration %q: %w", migration.Name, err)
		}
		if _, err = system.Increment(ctx, migrationVersionKey, 1); err != nil {
			return fmt.Errorf("could not record migration %q: %w", migration.Name, err)
		}
		log.Info("migration applied")
	}
	return nil
}
