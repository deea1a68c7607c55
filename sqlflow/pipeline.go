package sqlflow

import (
	"context"

	"github.com/praxisworks/tabula/llm"
	"github.com/praxisworks/tabula/o11y"
	"github.com/praxisworks/tabula/schema"
	"github.com/praxisworks/tabula/vector"
)

// Catalog is the slice of the metadata store the pipeline reads.
type Catalog interface {
	GetSQLDatabase(ctx context.Context, sqlID string) (schema.SQLDatabase, error)
	ListSQLTables(ctx context.Context, sqlID string) ([]schema.SQLTable, error)
	ListSQLColumns(ctx context.Context, tableID string) ([]schema.SQLColumn, error)
	SearchTablesByDescription(ctx context.Context, sqlID, term string) ([]schema.SQLTable, error)
	SearchColumnsByDescription(ctx context.Context, sqlID, term string) ([]schema.SQLColumn, error)
}

// SchemaNodeSearcher is the vector capability the pipeline uses to find
// candidate tables.
type SchemaNodeSearcher interface {
	Enabled() bool
	SearchSchemaNodes(ctx context.Context, q vector.SchemaNodeQuery) ([]vector.SchemaNodeHit, error)
}

// Pipeline is the full agentic SQL engine.
type Pipeline struct {
	catalog  Catalog
	vectors  SchemaNodeSearcher
	embedder llm.Embedder
	flow     *Flow
	agents   agents
	logger   *o11y.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *o11y.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// New creates the pipeline. maxRetries bounds the correction loop.
func New(cat Catalog, vectors SchemaNodeSearcher, embedder llm.Embedder, chat llm.ChatModel, executor Executor, maxRetries int, opts ...Option) *Pipeline {
	logger := o11y.NewLogger()
	p := &Pipeline{
		catalog:  cat,
		vectors:  vectors,
		embedder: embedder,
		flow:     NewFlow(chat, executor, maxRetries, logger),
		agents:   agents{chat: chat},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// tableInfo loads one table's columns into the prompt shape.
func (p *Pipeline) tableInfo(ctx context.Context, t schema.SQLTable) (TableInfo, error) {
	cols, err := p.catalog.ListSQLColumns(ctx, t.ID)
	if err != nil {
		return TableInfo{}, err
	}
	info := TableInfo{
		TableID:     t.ID,
		TableName:   t.Name,
		Description: t.Description,
		Columns:     make([]ColumnDetail, len(cols)),
	}
	for i, c := range cols {
		info.Columns[i] = ColumnDetail{
			Name:    c.Name,
			Type:    c.Type,
			Comment: c.Info.Comment,
			AnaType: c.Info.AnaType,
		}
	}
	return info, nil
}

// Run executes the whole state machine for one user query against one
// registered SQL database. Every sub-state emits a step event through
// notify; the returned Result is what the final chunk carries.
func (p *Pipeline) Run(ctx context.Context, sqlID, query string, notify StepFunc) (*Result, error) {
	if notify == nil {
		notify = nopStep
	}

	// S0: load the database and its schema. Fail fast when absent.
	db, err := p.catalog.GetSQLDatabase(ctx, sqlID)
	if err != nil {
		notify(StepDatabaseInfo, schema.StepFailed, map[string]any{"error": err.Error()})
		return nil, err
	}
	allTables, err := p.catalog.ListSQLTables(ctx, sqlID)
	if err != nil {
		notify(StepDatabaseInfo, schema.StepFailed, map[string]any{"error": err.Error()})
		return nil, err
	}
	notify(StepDatabaseInfo, schema.StepCompleted, map[string]any{
		"database_name": db.Name,
		"database_type": db.Dialect,
		"tables_count":  len(allTables),
	})

	// S1: metadata shortcut. A classified metadata query is answered (or
	// failed) right here; the generation pipeline never runs.
	if kind := ClassifyMetadataQuery(query); kind != MetadataNone {
		answer, err := p.runMetadataQuery(ctx, sqlID, query, kind)
		if err != nil {
			notify(StepMetadataQuery, schema.StepFailed, map[string]any{"error": err.Error()})
			return nil, err
		}
		status := schema.StepCompleted
		if !answer.Success {
			status = schema.StepFailed
		}
		notify(StepMetadataQuery, status, answer)
		if !answer.Success {
			return &Result{Dialect: db.Dialect, MetadataAnswer: &answer},
				schema.NewError("sqlflow.metadata", schema.KindNotFound, answer.Error, nil)
		}
		return &Result{Dialect: db.Dialect, MetadataAnswer: &answer, IsSatisfied: true, SatisfactionScore: 1.0}, nil
	}
	notify(StepMetadataQuery, schema.StepCompleted, map[string]any{"is_metadata_query": false})

	// S2: vector search for candidate tables, deduplicated by table id.
	// Failures degrade to "no candidates"; the flow continues.
	candidates := p.vectorCandidates(ctx, sqlID, query, allTables, notify)

	// S3: query decomposition, cross-checked against the candidates.
	decomposition, err := p.agents.Decompose(ctx, query, candidates)
	if err != nil {
		notify(StepQueryDecomposition, schema.StepFailed, map[string]any{"error": err.Error()})
		return nil, schema.NewError("sqlflow.decompose", schema.KindPipelineFatal, "query decomposition failed", err)
	}
	notify(StepQueryDecomposition, schema.StepCompleted, decomposition)

	// S4: filter tables by LIKE search over descriptions; fall back to all
	// tables when nothing matches.
	filtered := p.filterTables(ctx, sqlID, decomposition, allTables)

	filteredInfos := make([]TableInfo, 0, len(filtered))
	for _, t := range filtered {
		info, err := p.tableInfo(ctx, t)
		if err != nil {
			p.logger.Warn(ctx, "loading table columns failed", "table_id", t.ID, "error", err)
			continue
		}
		filteredInfos = append(filteredInfos, info)
	}

	// S5: intent recognition over the decomposition and filtered tables.
	intent, err := p.agents.RecognizeIntent(ctx, query, decomposition, filteredInfos)
	if err != nil {
		notify(StepIntentRecognition, schema.StepFailed, map[string]any{"error": err.Error()})
		return nil, schema.NewError("sqlflow.intent", schema.KindPipelineFatal, "intent recognition failed", err)
	}
	notify(StepIntentRecognition, schema.StepCompleted, intent)

	relevant := selectRelevantTables(intent, filteredInfos)
	if len(relevant) == 0 {
		notify(StepSQLGeneration, schema.StepFailed, map[string]any{"error": "no relevant tables"})
		return nil, schema.NewError("sqlflow.tables", schema.KindPipelineFatal, "no relevant tables found, cannot generate SQL", nil)
	}

	// S6: the generation sub-flow.
	flowResult, err := p.flow.Run(ctx, query, intent, relevant, db, notify)
	if err != nil {
		notify(StepSQLGeneration, schema.StepFailed, map[string]any{"error": err.Error()})
		return nil, err
	}

	// S7: result shaping to table.col column names.
	columnsUsed := flowResult.ColumnsUsed
	if len(columnsUsed) == 0 {
		columnsUsed = columnsUsedFromSQL(flowResult.SQL, relevant)
	}
	shaped := ShapeResult(flowResult.Execution, columnsUsed)

	tablesUsed := make([]string, 0, len(columnsUsed))
	seen := map[string]bool{}
	for _, c := range columnsUsed {
		if c.TableName != "" && !seen[c.TableName] {
			seen[c.TableName] = true
			tablesUsed = append(tablesUsed, c.TableName)
		}
	}

	result := &Result{
		SQL:               flowResult.SQL,
		Dialect:           db.Dialect,
		Execution:         shaped,
		IsSatisfied:       flowResult.IsSatisfied,
		SatisfactionScore: flowResult.SatisfactionScore,
		ColumnsUsed:       columnsUsed,
		TablesUsed:        tablesUsed,
	}
	notify(StepSQLGeneration, schema.StepCompleted, result)
	notify(StepFinalResult, schema.StepCompleted, map[string]any{
		"sql":      result.SQL,
		"sql_type": result.Dialect,
	})
	return result, nil
}

// vectorCandidates searches the schema-node partition and resolves the hit
// table ids back to catalog tables.
func (p *Pipeline) vectorCandidates(ctx context.Context, sqlID, query string, allTables []schema.SQLTable, notify StepFunc) []TableInfo {
	if p.vectors == nil || !p.vectors.Enabled() {
		notify(StepVectorSearch, schema.StepSkipped, map[string]any{"reason": "vector backend disabled"})
		return nil
	}
	queryVector, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		notify(StepVectorSearch, schema.StepFailed, map[string]any{"error": err.Error()})
		return nil
	}
	hits, err := p.vectors.SearchSchemaNodes(ctx, vector.SchemaNodeQuery{
		SQLID:      sqlID,
		NameVector: queryVector,
		DescVector: queryVector,
		Limit:      10,
	})
	if err != nil {
		notify(StepVectorSearch, schema.StepFailed, map[string]any{"error": err.Error()})
		return nil
	}

	byID := make(map[string]schema.SQLTable, len(allTables))
	for _, t := range allTables {
		byID[t.ID] = t
	}

	seen := map[string]bool{}
	var infos []TableInfo
	for _, hit := range hits {
		if hit.TableID == "" || seen[hit.TableID] {
			continue
		}
		seen[hit.TableID] = true
		t, ok := byID[hit.TableID]
		if !ok {
			continue
		}
		info, err := p.tableInfo(ctx, t)
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}

	notify(StepVectorSearch, schema.StepCompleted, map[string]any{
		"search_results_count": len(hits),
		"table_info_count":     len(infos),
	})
	return infos
}

// filterTables LIKE-searches table descriptions by entity name and column
// descriptions by metric name, unioning the results. An empty union falls
// back to every table.
func (p *Pipeline) filterTables(ctx context.Context, sqlID string, d Decomposition, allTables []schema.SQLTable) []schema.SQLTable {
	matched := map[string]bool{}

	for _, entity := range d.Entities {
		if entity.Name == "" {
			continue
		}
		tables, err := p.catalog.SearchTablesByDescription(ctx, sqlID, entity.Name)
		if err != nil {
			continue
		}
		for _, t := range tables {
			matched[t.ID] = true
		}
	}
	for _, metric := range d.Metrics {
		if metric.Name == "" {
			continue
		}
		cols, err := p.catalog.SearchColumnsByDescription(ctx, sqlID, metric.Name)
		if err != nil {
			continue
		}
		for _, c := range cols {
			matched[c.TableID] = true
		}
	}

	if len(matched) == 0 {
		return allTables
	}
	var filtered []schema.SQLTable
	for _, t := range allTables {
		if matched[t.ID] {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		return allTables
	}
	return filtered
}

// selectRelevantTables keeps the tables the intent named, falling back to
// the whole filtered set when the intent named none that exist.
func selectRelevantTables(intent Intent, tables []TableInfo) []TableInfo {
	if len(intent.RelevantTables) == 0 {
		return tables
	}
	wanted := map[string]bool{}
	for _, name := range intent.RelevantTables {
		wanted[name] = true
	}
	var relevant []TableInfo
	for _, t := range tables {
		if wanted[t.TableName] {
			relevant = append(relevant, t)
		}
	}
	if len(relevant) == 0 {
		return tables
	}
	return relevant
}
