package mysql

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql" // registers the "mysql" database/sql driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource/sqldb"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "mysql",
			DisplayName: "MySQL",
			Description: "Gaian federation fronted by a MySQL-protocol endpoint",
			DefaultPort: DefaultPort(),
		},
		PoolFactory: func(ctx context.Context, cfg datasource.ConnectionConfig, logger *zap.Logger) (datasource.Pool, error) {
			dsn, err := buildDSN(cfg)
			if err != nil {
				return nil, err
			}
			return sqldb.NewPool(func() (*sql.DB, error) {
				return sql.Open("mysql", dsn)
			}, sqldb.Options{
				Type:    "mysql",
				MinIdle: int(cfg.MinPoolSize),
				MaxOpen: int(cfg.MaxPoolSize),
			}, logger)
		},
	})
}
