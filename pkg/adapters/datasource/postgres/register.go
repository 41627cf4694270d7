package postgres

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Description: "Gaian federation fronted by a PostgreSQL-protocol endpoint",
			DefaultPort: DefaultPort(),
		},
		PoolFactory: func(ctx context.Context, cfg datasource.ConnectionConfig, logger *zap.Logger) (datasource.Pool, error) {
			pgCfg, err := FromConnectionConfig(cfg)
			if err != nil {
				return nil, err
			}
			return NewPool(ctx, pgCfg, logger)
		},
	})
}
