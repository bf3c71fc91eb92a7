package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpen_creates_metadata_tables(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"forms", "forms_columns", "forms_columns_types"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestOpen_seeds_column_types(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	var count int
	err = s.DB().QueryRow("SELECT COUNT(*) FROM forms_columns_types").Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 8, count)

	var name string
	err = s.DB().QueryRow(
		"SELECT name FROM forms_columns_types WHERE identifier = ?", "link",
	).Scan(&name)
	require.NoError(t, err)
	require.Equal(t, "Link", name)
}

func TestOpen_records_schema_version(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	var version int
	err = s.DB().QueryRow("SELECT version FROM schema_version").Scan(&version)
	require.NoError(t, err)
	require.Equal(t, currentSchemaVersion, version)
}

func TestHealthCheck(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)

	require.NoError(t, s.HealthCheck(context.Background()))

	require.NoError(t, s.Close())
	require.Error(t, s.HealthCheck(context.Background()))
}
