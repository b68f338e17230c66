package websub_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/websub"
)

func TestMigrationStatements(t *testing.T) {
	for _, driver := range []string{"mysql", "postgres", "sqlite3"} {
		t.Run(driver, func(t *testing.T) {
			statements, err := websub.MigrationStatements(driver)
			require.NoError(t, err)
			require.NotEmpty(t, statements)
			assert.True(t, strings.Contains(statements[0], "websub_subscriptions"))

			joined := strings.Join(statements, "\n")
			assert.Contains(t, joined, "websub_jobs")
			for _, stmt := range statements {
				assert.NotEmpty(t, strings.TrimSpace(stmt))
			}
		})
	}
}

func TestMigrationStatements_UnknownDriver(t *testing.T) {
	_, err := websub.MigrationStatements("oracle")
	require.Error(t, err)

	var hubErr *websub.Error
	require.ErrorAs(t, err, &hubErr)
	assert.Equal(t, websub.ErrCodeConfiguration, hubErr.Code)
}
