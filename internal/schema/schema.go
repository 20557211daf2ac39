// Package schema は通知サービスが使うSQLiteスキーマを埋め込みで保持する。
package schema

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/nao1215/gymhub/pkg/migration"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// Apply はスキーマを適用する。何度呼んでも、複数箇所から同時に呼んでも安全。
func Apply(ctx context.Context, db *sql.DB) error {
	if err := migration.Run(ctx, db, migrations, "migrations"); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
