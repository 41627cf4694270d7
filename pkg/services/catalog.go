package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/engine"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/logging"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/nodes"
)

// Gaian catalog statements.
const (
	DefaultLogicalTablesSQL  = "select LTNAME from new com.ibm.db2j.GaianQuery('call listlts()','maxdepth=0') gq union select distinct tabname as LTNAME from derby_tables_0 where tabtype='T'"
	DefaultPhysicalTablesSQL = "select distinct tabname from derby_tables_0 where tabtype='T'"
)

// Internal Gaian tables that are never offered to users.
var (
	hiddenLogicalTables = map[string]bool{
		"DERBY_TABLES":           true,
		"GDB_LTLOG":              true,
		"GDB_LTNULL":             true,
		"GDB_LOCAL_METRICS":      true,
		"GDB_LOCAL_QUERIES":      true,
		"GDB_LOCAL_QUERY_FIELDS": true,
	}
	hiddenPhysicalTables = map[string]bool{
		"GDB_LOCAL_METRICS":      true,
		"GDB_LOCAL_QUERIES":      true,
		"GDB_LOCAL_QUERY_FIELDS": true,
	}
)

// ConfigNodeLookup resolves a database config node by ID.
type ConfigNodeLookup interface {
	Config(id string) (*nodes.GaianConfig, error)
}

// CatalogService lists the tables a database config node can see.
type CatalogService interface {
	// ListLogicalTables returns the logical table names, minus Gaian internals.
	// Any failure yields an empty list.
	ListLogicalTables(ctx context.Context, configNodeID string) []string

	// ListPhysicalTables returns the physical table names, minus Gaian internals.
	// Any failure yields an empty list.
	ListPhysicalTables(ctx context.Context, configNodeID string) []string
}

type catalogService struct {
	configs ConfigNodeLookup
	logger  *zap.Logger
}

// NewCatalogService creates a catalog service over the flow's config nodes.
func NewCatalogService(configs ConfigNodeLookup, logger *zap.Logger) CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &catalogService{
		configs: configs,
		logger:  logger.Named("catalog"),
	}
}

func (s *catalogService) ListLogicalTables(ctx context.Context, configNodeID string) []string {
	return s.list(ctx, configNodeID, func(db *nodes.GaianConfig) string {
		return db.Config().LogicalTablesSQL
	}, DefaultLogicalTablesSQL, "LTNAME", hiddenLogicalTables)
}

func (s *catalogService) ListPhysicalTables(ctx context.Context, configNodeID string) []string {
	return s.list(ctx, configNodeID, func(db *nodes.GaianConfig) string {
		return db.Config().PhysicalTablesSQL
	}, DefaultPhysicalTablesSQL, "TABNAME", hiddenPhysicalTables)
}

func (s *catalogService) list(ctx context.Context, configNodeID string, override func(*nodes.GaianConfig) string, defaultSQL, column string, hidden map[string]bool) []string {
	tables := []string{}
	if configNodeID == "" {
		return tables
	}

	db, err := s.configs.Config(configNodeID)
	if err != nil {
		s.logger.Debug("unknown config node", zap.String("config_node_id", configNodeID))
		return tables
	}

	sql := override(db)
	if sql == "" {
		sql = defaultSQL
	}

	outcome := db.Run(ctx, engine.Request{Kind: engine.KindQuery, SQL: sql}, nil, engine.NopReporter)
	result, ok := outcome.(*engine.QueryResult)
	if !ok {
		if failure, isFailure := outcome.(*engine.Failure); isFailure {
			s.logger.Warn("catalog query failed",
				zap.String("config_node_id", configNodeID),
				zap.String("error", logging.SanitizeError(failure)))
		}
		return tables
	}

	return filterTables(result.Rows, column, hidden)
}

// filterTables reads column from each row, skipping hidden names and keeping row order.
func filterTables(rows []map[string]any, column string, hidden map[string]bool) []string {
	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		name, ok := lookupColumn(row, column)
		if !ok || hidden[name] {
			continue
		}
		tables = append(tables, name)
	}
	return tables
}

// lookupColumn finds column in row ignoring case.
func lookupColumn(row map[string]any, column string) (string, bool) {
	v, ok := row[column]
	if !ok {
		for k, val := range row {
			if strings.EqualFold(k, column) {
				v, ok = val, true
				break
			}
		}
	}
	if !ok || v == nil {
		return "", false
	}
	if s, isString := v.(string); isString {
		return s, true
	}
	return fmt.Sprint(v), true
}
