package migrations

import (
	"path/filepath"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_Collect(t *testing.T) {
	collected, err := goose.CollectMigrations(".", 0, goose.MaxVersion)
	require.NoError(t, err)
	require.Len(t, collected, 2)

	assert.Equal(t, int64(1), collected[0].Version)
	assert.Equal(t, "00001_create_saga_states.sql", filepath.Base(collected[0].Source))

	assert.Equal(t, int64(2), collected[1].Version)
	assert.Equal(t, "00002_create_saga_transitions.sql", filepath.Base(collected[1].Source))
}

func TestSetDialect(t *testing.T) {
	assert.NoError(t, SetDialect(""))
	assert.NoError(t, SetDialect("postgres"))
	assert.Error(t, SetDialect("cassandra"))
}
