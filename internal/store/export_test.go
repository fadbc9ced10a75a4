package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// StartPostgres exposes the integration database to the store_test package.
var StartPostgres = startPostgres

// DanglingReplies counts comments whose parent row no longer exists.
func DanglingReplies(t *testing.T, s *GormStore) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.db.Raw(`
		SELECT count(*) FROM comments c
		WHERE c.parent_id IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM comments p WHERE p.id = c.parent_id)`).Scan(&n).Error)
	return n
}
