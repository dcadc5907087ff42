package version_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pitabwire/autotranslate/version"
)

func TestStampedValuesWin(t *testing.T) {
	oldVersion, oldCommit, oldDate := version.Version, version.Commit, version.Date
	t.Cleanup(func() {
		version.Version, version.Commit, version.Date = oldVersion, oldCommit, oldDate
	})

	version.Version, version.Commit, version.Date = "v1.2.3", "abc123", "2026-01-02"

	info := version.Get()
	require.Equal(t, version.Info{Version: "v1.2.3", Commit: "abc123", Date: "2026-01-02"}, info)
	require.Equal(t, "v1.2.3 (abc123) built 2026-01-02", info.String())
}

func TestUnstampedFieldsAreFilled(t *testing.T) {
	info := version.Get()
	require.NotEmpty(t, info.Version)
	require.NotEmpty(t, info.Commit)
	require.NotEmpty(t, info.Date)
}
