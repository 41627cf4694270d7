package mssql

import (
	"context"
	"database/sql"

	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" database/sql driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource/sqldb"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "mssql",
			DisplayName: "Microsoft SQL Server",
			Description: "Gaian federation fronted by a TDS endpoint",
			DefaultPort: DefaultPort(),
		},
		PoolFactory: func(ctx context.Context, cfg datasource.ConnectionConfig, logger *zap.Logger) (datasource.Pool, error) {
			connStr, err := buildConnectionString(cfg)
			if err != nil {
				return nil, err
			}
			return sqldb.NewPool(func() (*sql.DB, error) {
				return sql.Open("sqlserver", connStr)
			}, sqldb.Options{
				Type:    "mssql",
				MinIdle: int(cfg.MinPoolSize),
				MaxOpen: int(cfg.MaxPoolSize),
			}, logger)
		},
	})
}
