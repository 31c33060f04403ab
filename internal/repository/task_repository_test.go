package repository

import (
	"testing"

	"librag/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActiveTaskWhere(t *testing.T) {
	sql, args, err := activeTaskWhere(7, "fees.pdf", models.ParseStrategyPageSplit).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "file_name = ?")
	assert.Contains(t, sql, "kb_id = ?")
	assert.Contains(t, sql, "parse_strategy = ?")
	assert.Contains(t, sql, "status IN (?,?)")
	assert.Contains(t, sql, "document_id IS NOT NULL")
	assert.NotContains(t, sql, "failed")
	assert.Equal(t, []any{
		"fees.pdf", int64(7), models.ParseStrategyPageSplit,
		models.TaskStatusPending, models.TaskStatusProcessing, models.TaskStatusSucceed,
	}, args)
}
