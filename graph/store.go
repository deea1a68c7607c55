// Package graph is the labeled-property-graph store, backed by Neo4j. It
// holds both document graphs (entities and relations extracted from files)
// and schema graphs (entity/attribute/identifier/metric nodes of analysed
// SQL databases, connected by structural edges only).
package graph

import (
	"context"
	"fmt"

	driver "github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/praxisworks/tabula/o11y"
)

// Config holds the Neo4j connection settings.
type Config struct {
	// URI is the connection URI (e.g. "neo4j://localhost:7687").
	URI string
	// Username is the authentication username.
	Username string
	// Password is the authentication password.
	Password string
	// Database is the target database name. Empty means the default database.
	Database string
}

// sessionRunner abstracts Neo4j session operations for testability. The
// driver interfaces have unexported methods, so a thin wrapper stands in.
type sessionRunner interface {
	executeWrite(ctx context.Context, cypher string, params map[string]any) error
	executeRead(ctx context.Context, cypher string, params map[string]any) ([]record, error)
	close(ctx context.Context) error
}

// record represents a single row from a query result.
type record struct {
	values []any
}

// nodeWrapper holds data extracted from a Neo4j node.
type nodeWrapper struct {
	elementID string
	labels    []string
	props     map[string]any
}

// relWrapper holds data extracted from a Neo4j relationship.
type relWrapper struct {
	elementID      string
	relType        string
	startElementID string
	endElementID   string
	props          map[string]any
}

// neo4jRunner wraps a real Neo4j driver.
type neo4jRunner struct {
	drv      driver.DriverWithContext
	database string
}

func (r *neo4jRunner) executeWrite(ctx context.Context, cypher string, params map[string]any) error {
	session := r.drv.NewSession(ctx, driver.SessionConfig{DatabaseName: r.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx driver.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, cypher, params)
		return nil, err
	})
	return err
}

func (r *neo4jRunner) executeRead(ctx context.Context, cypher string, params map[string]any) ([]record, error) {
	session := r.drv.NewSession(ctx, driver.SessionConfig{
		DatabaseName: r.database,
		AccessMode:   driver.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx driver.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}

		var records []record
		for res.Next(ctx) {
			rec := res.Record()
			values := make([]any, len(rec.Values))
			for i, v := range rec.Values {
				switch typed := v.(type) {
				case driver.Node:
					values[i] = nodeWrapper{
						elementID: typed.ElementId,
						labels:    typed.Labels,
						props:     typed.Props,
					}
				case driver.Relationship:
					values[i] = relWrapper{
						elementID:      typed.ElementId,
						relType:        typed.Type,
						startElementID: typed.StartElementId,
						endElementID:   typed.EndElementId,
						props:          typed.Props,
					}
				default:
					values[i] = v
				}
			}
			records = append(records, record{values: values})
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]record), nil
}

func (r *neo4jRunner) close(ctx context.Context) error {
	return r.drv.Close(ctx)
}

// Store is the graph store. All operations are no-ops returning empty results
// when the backend is disabled.
type Store struct {
	runner  sessionRunner
	logger  *o11y.Logger
	enabled bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *o11y.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithDisabled marks the backend as disabled.
func WithDisabled() Option {
	return func(s *Store) { s.enabled = false }
}

// New creates a Store connected to the configured Neo4j deployment.
func New(cfg Config, opts ...Option) (*Store, error) {
	drv, err := driver.NewDriverWithContext(cfg.URI, driver.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("graph: create driver: %w", err)
	}
	s := &Store{
		runner:  &neo4jRunner{drv: drv, database: cfg.Database},
		logger:  o11y.NewLogger(),
		enabled: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// newWithRunner creates a Store with a custom session runner (for testing).
func newWithRunner(r sessionRunner) *Store {
	return &Store{runner: r, logger: o11y.NewLogger(), enabled: true}
}

// Enabled reports whether the backend is active.
func (s *Store) Enabled() bool { return s.enabled }

// Close closes the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	if !s.enabled {
		return nil
	}
	return s.runner.close(ctx)
}

// HealthCheck probes the deployment with a trivial read.
func (s *Store) HealthCheck(ctx context.Context) o11y.HealthResult {
	if !s.enabled {
		return o11y.HealthResult{Status: o11y.Degraded, Message: "disabled by configuration"}
	}
	if _, err := s.runner.executeRead(ctx, "RETURN 1", nil); err != nil {
		return o11y.HealthResult{Status: o11y.Unhealthy, Message: err.Error()}
	}
	return o11y.HealthResult{Status: o11y.Healthy}
}

// Node is a graph node as stored or returned by queries.
type Node struct {
	ID     string
	Label  string
	Props  map[string]any
}

// Relation is a typed edge between two nodes.
type Relation struct {
	Type  string
	From  string
	To    string
	Props map[string]any
}

// QueryResult collects the nodes and relations a Cypher query matched.
type QueryResult struct {
	Nodes     []Node
	Relations []Relation
	Rows      []map[string]any
}

// CreateNode merges a node by node_id, making creation idempotent: repeated
// calls with the same id update properties instead of duplicating the node.
func (s *Store) CreateNode(ctx context.Context, n Node) error {
	if !s.enabled {
		return nil
	}
	cypher := fmt.Sprintf("MERGE (n:%s {node_id: $id}) SET n += $props", sanitizeLabel(n.Label))
	params := map[string]any{
		"id":    n.ID,
		"props": sanitizeProps(n.Props),
	}
	if err := s.runner.executeWrite(ctx, cypher, params); err != nil {
		return fmt.Errorf("graph/create_node: %w", err)
	}
	return nil
}

// CreateRelation creates a typed edge between two existing nodes. The MERGE
// keeps re-runs of the same construction from stacking duplicate edges.
func (s *Store) CreateRelation(ctx context.Context, r Relation) error {
	if !s.enabled {
		return nil
	}
	cypher := fmt.Sprintf(`MATCH (a {node_id: $from})
MATCH (b {node_id: $to})
MERGE (a)-[r:%s]->(b)
SET r += $props`, sanitizeLabel(r.Type))
	params := map[string]any{
		"from":  r.From,
		"to":    r.To,
		"props": sanitizeProps(r.Props),
	}
	if err := s.runner.executeWrite(ctx, cypher, params); err != nil {
		return fmt.Errorf("graph/create_relation: %w", err)
	}
	return nil
}

// Query executes a parametrised Cypher read and collects every node,
// relation, and scalar row it returns.
func (s *Store) Query(ctx context.Context, cypher string, params map[string]any) (QueryResult, error) {
	if !s.enabled {
		return QueryResult{}, nil
	}
	records, err := s.runner.executeRead(ctx, cypher, params)
	if err != nil {
		return QueryResult{}, fmt.Errorf("graph/query: %w", err)
	}

	var result QueryResult
	nodeSeen := make(map[string]bool)
	relSeen := make(map[string]bool)
	for _, rec := range records {
		row := make(map[string]any)
		for i, val := range rec.values {
			collectValue(val, &result, nodeSeen, relSeen, row, i)
		}
		if len(row) > 0 {
			result.Rows = append(result.Rows, row)
		}
	}
	return result, nil
}

func collectValue(val any, result *QueryResult, nodeSeen, relSeen map[string]bool, row map[string]any, col int) {
	switch v := val.(type) {
	case nodeWrapper:
		id := getString(v.props, "node_id")
		if id == "" {
			id = v.elementID
		}
		if !nodeSeen[id] {
			nodeSeen[id] = true
			label := ""
			if len(v.labels) > 0 {
				label = v.labels[0]
			}
			result.Nodes = append(result.Nodes, Node{ID: id, Label: label, Props: v.props})
		}
	case relWrapper:
		if !relSeen[v.elementID] {
			relSeen[v.elementID] = true
			result.Relations = append(result.Relations, Relation{
				Type:  v.relType,
				From:  v.startElementID,
				To:    v.endElementID,
				Props: v.props,
			})
		}
	case []any:
		for _, item := range v {
			collectValue(item, result, nodeSeen, relSeen, row, col)
		}
	default:
		row[fmt.Sprintf("col%d", col)] = v
	}
}

// DeleteBySourceContains removes every node whose source_id contains the
// given chunk id, together with incident relations. File deletion sweeps the
// document graph through this.
func (s *Store) DeleteBySourceContains(ctx context.Context, chunkID string) error {
	if !s.enabled {
		return nil
	}
	cypher := "MATCH (n) WHERE n.source_id CONTAINS $chunkId DETACH DELETE n"
	if err := s.runner.executeWrite(ctx, cypher, map[string]any{"chunkId": chunkID}); err != nil {
		return fmt.Errorf("graph/delete_by_source: %w", err)
	}
	return nil
}

// DeleteBySQLID removes every schema-graph node of a SQL database and its
// incident relations.
func (s *Store) DeleteBySQLID(ctx context.Context, sqlID string) error {
	if !s.enabled {
		return nil
	}
	cypher := "MATCH (n {sql_id: $sqlId}) DETACH DELETE n"
	if err := s.runner.executeWrite(ctx, cypher, map[string]any{"sqlId": sqlID}); err != nil {
		return fmt.Errorf("graph/delete_by_sql_id: %w", err)
	}
	return nil
}

// Neighborhood expands one hop around every node matching the given name,
// restricted to nodes the caller may see. When publicOnly is set, only
// public nodes are traversed.
func (s *Store) Neighborhood(ctx context.Context, name string, publicOnly bool) (QueryResult, error) {
	if !s.enabled {
		return QueryResult{}, nil
	}
	cypher := "MATCH (n {name: $name})-[r]-(m)"
	if publicOnly {
		cypher += " WHERE coalesce(n.permission_level, 'public') = 'public'" +
			" AND coalesce(m.permission_level, 'public') = 'public'"
	}
	cypher += " RETURN n, r, m"
	return s.Query(ctx, cypher, map[string]any{"name": name})
}

// sanitizeLabel keeps Cypher labels to identifier characters; labels cannot
// be parametrised.
func sanitizeLabel(label string) string {
	if label == "" {
		return "Entity"
	}
	out := make([]rune, 0, len(label))
	for _, r := range label {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "Entity"
	}
	return string(out)
}

// sanitizeProps drops nil values so SET n += $props never nulls a property
// unintentionally.
func sanitizeProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func getString(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}
