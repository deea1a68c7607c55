package tablefile

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxisworks/tabula/schema"
	"github.com/praxisworks/tabula/supervisor"
)

type stepLog struct {
	steps  []string
	charts []string
	texts  []string
}

func (l *stepLog) callbacks() Callbacks {
	return Callbacks{
		Step: func(step string, status schema.StepStatus, payload any) {
			l.steps = append(l.steps, step+":"+string(status))
		},
		Chart: func(option string) { l.charts = append(l.charts, option) },
		Text:  func(markdown string) { l.texts = append(l.texts, markdown) },
	}
}

func (l *stepLog) has(step string) bool {
	for _, s := range l.steps {
		if s == step {
			return true
		}
	}
	return false
}

const salesCSV = `units,revenue,region,month
1,2,east,2023-01-01
2,4,west,2023-02-01
3,6,east,2023-03-01
4,8,north,2023-04-01
5,10,west,2023-05-01
6,12,east,2023-06-01
7,14,north,2023-07-01
8,16,west,2023-08-01
9,18,east,2023-09-01
10,20,north,2023-10-01
11,22,east,2023-11-01
12,24,west,2023-12-01
`

func TestPipeline_FullRun(t *testing.T) {
	p := New(nil, supervisor.New(nil))
	log := &stepLog{}

	result, err := p.Run(context.Background(), "sales.csv", strings.NewReader(salesCSV), "analyse sales", log.callbacks())
	require.NoError(t, err)

	// Every stage ran, in order.
	for _, step := range []string{
		StepFileReading + ":completed",
		StepFileUnderstanding + ":completed",
		StepDataTypeAnalysis + ":completed",
		StepStatisticsPlanning + ":completed",
		StepStatisticsCalculation + ":completed",
		StepCorrelationAnalysis + ":completed",
		StepSemanticAnalysis + ":completed",
		StepResultInterpretation + ":completed",
		StepChartGeneration + ":completed",
	} {
		assert.True(t, log.has(step), "missing %s in %v", step, log.steps)
	}

	require.NotNil(t, result.Plan)
	require.NotEmpty(t, result.Statistics)
	require.NotNil(t, result.Correlation)
	assert.NotEmpty(t, result.Correlation.Strong, "units/revenue correlation found")
	assert.NotEmpty(t, result.Interpretation)

	// Charts streamed with the option= prefix, at most five.
	require.NotEmpty(t, log.charts)
	assert.LessOrEqual(t, len(log.charts), 5)
	for _, option := range log.charts {
		assert.True(t, strings.HasPrefix(option, "option="))
	}

	// Interpretation streamed as text.
	require.Len(t, log.texts, 1)
	assert.Contains(t, log.texts[0], "Executive Summary")

	// Supervision sidecar accumulated without blocking anything.
	assert.NotEmpty(t, result.Supervision)
}

func TestPipeline_AllNullColumn_NoValidData(t *testing.T) {
	p := New(nil, supervisor.New(nil))
	log := &stepLog{}

	csv := "void\n\n\n\n"
	result, err := p.Run(context.Background(), "empty.csv", strings.NewReader(csv), "", log.callbacks())
	require.NoError(t, err, "empty statistics never abort the pipeline")

	// Stages 0-2 completed.
	assert.True(t, log.has(StepFileReading+":completed"))
	assert.True(t, log.has(StepDataTypeAnalysis+":completed"))

	// Correlation skipped with a typed reason; chart stage reports
	// no_valid_data and no chart chunks are emitted.
	assert.True(t, log.has(StepCorrelationAnalysis+":skipped"))
	assert.True(t, log.has(StepChartGeneration+":completed"))
	assert.Empty(t, log.charts, "no chart chunks for empty statistics")
	assert.Empty(t, result.Charts)

	// The interpretation still explains the absence of evidence.
	require.Len(t, log.texts, 1)
	assert.Contains(t, log.texts[0], "No statistics")
}

func TestPipeline_BadCSVFails(t *testing.T) {
	p := New(nil, nil)
	log := &stepLog{}

	_, err := p.Run(context.Background(), "bad.csv", strings.NewReader("a,b\n\"unterminated"), "", log.callbacks())
	require.Error(t, err)
	assert.Equal(t, schema.KindPipelineFatal, schema.KindOf(err))
	assert.True(t, log.has(StepFileReading+":failed"))
}
