package db

import (
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/strand-cloud/strand/internal/models"
	"github.com/strand-cloud/strand/pkg/env"
)

// Connection opens a gorm connection to the ledger database
// configured in the environment. TranslateError is enabled so
// duplicate-key violations surface as gorm.ErrDuplicatedKey
// regardless of backend.
func Connection() (*gorm.DB, error) {
	var (
		gdb *gorm.DB
		err error
		cfg = &gorm.Config{TranslateError: true}
	)

	switch env.Variables().DatabaseType {
	case "postgres":
		gdb, err = gorm.Open(
			postgres.New(postgres.Config{
				DriverName: "pgx",
				DSN:        env.Variables().DatabaseDSN,
			}),
			cfg,
		)
	case "sqlite":
		fallthrough
	default:
		gdb, err = gorm.Open(
			sqlite.Open(env.Variables().LedgerPath),
			cfg,
		)
	}

	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to ledger database")
	}

	return gdb, nil
}

// Migrate ensures the ledger schema exists.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&models.LedgerRow{})
}
