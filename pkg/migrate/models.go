package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-stock/pkg/db/models"
)

// Models lists every table owned by the service, parents first.
func Models() []any {
	return []any{
		&models.ProductStock{},
		&models.Reservation{},
		&models.ReservationLine{},
		&models.StockMovement{},
		&models.StockAlert{},
		&models.OutboxEvent{},
	}
}

// AutoMigrateModels creates the schema from the GORM models. Used for sqlite
// (local runs and tests); Postgres deployments use the goose migrations.
func AutoMigrateModels(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate models: %w", err)
	}
	return nil
}
