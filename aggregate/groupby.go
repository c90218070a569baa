
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aaronlmathis/jsontable/core"
)

// GroupBy summarizes rows sharing the same values of the group fields.
// Groups appear in order of their first row; each result row holds the group fields
// followed by one field per aggregator, in the order they were added.
type GroupBy struct {
	groupFields []string
	outputs     []string
	aggregators []Aggregator
}

// NewGroupBy creates a new GroupBy aggregation. Without group fields every row is in one group.
func NewGroupBy(groupFields ...string) *GroupBy {
	return &GroupBy{groupFields: groupFields}
}

// With adds a custom aggregator for the output field
func (g *GroupBy) With(outputField string, aggregator Aggregator) *GroupBy {
	g.outputs = append(g.outputs, outputField)
	g.aggregators = append(g.aggregators, aggregator)
	return g
}

// Count adds a count aggregator for the specified output field
func (g *GroupBy) Count(outputField string) *GroupBy {
	return g.With(outputField, &CountAggregator{})
}

// Sum adds a sum aggregator for the specified field
func (g *GroupBy) Sum(field, outputField string) *GroupBy {
	return g.With(outputField, &SumAggregator{Field: field})
}

// Avg adds an average aggregator for the specified field
func (g *GroupBy) Avg(field, outputField string) *GroupBy {
	return g.With(outputField, &AvgAggregator{Field: field})
}

// Min adds a minimum aggregator for the specified field
func (g *GroupBy) Min(field, outputField string) *GroupBy {
	return g.With(outputField, &MinAggregator{Field: field})
}

// Max adds a maximum aggregator for the specified field
func (g *GroupBy) Max(field, outputField string) *GroupBy {
	return g.With(outputField, &MaxAggregator{Field: field})
}

type group struct {
	values      []interface{}
	aggregators []Aggregator
}

// Process aggregates rows and returns one summary row per group.
func (g *GroupBy) Process(ctx context.Context, rows []core.Record) ([]core.Record, error) {
	index := make(map[string]*group)
	var order []*group

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		key, values, err := g.groupKey(row)
		if err != nil {
			return nil, err
		}

		grp, ok := index[key]
		if !ok {
			grp = &group{values: values, aggregators: make([]Aggregator, len(g.aggregators))}
			for i, aggregator := range g.aggregators {
				grp.aggregators[i] = aggregator.Clone()
			}
			index[key] = grp
			order = append(order, grp)
		}

		for i, aggregator := range grp.aggregators {
			if err := aggregator.Add(ctx, row); err != nil {
				return nil, fmt.Errorf("aggregation error for field %s: %w", g.outputs[i], err)
			}
		}
	}

	results := make([]core.Record, 0, len(order))
	for _, grp := range order {
		result := core.NewRecord()
		for i, field := range g.groupFields {
			result.Set(field, grp.values[i])
		}
		for i, aggregator := range grp.aggregators {
			value, err := aggregator.Result()
			if err != nil {
				return nil, fmt.Errorf("failed to get result for field %s: %w", g.outputs[i], err)
			}
			result.Set(g.outputs[i], value)
		}
		results = append(results, result)
	}

	return results, nil
}

// Rewrite replaces the rows with their summary, for use with Collection.Rewrite.
func (g *GroupBy) Rewrite(ctx context.Context, rows []core.Record) ([]core.Record, error) {
	return g.Process(ctx, rows)
}

// groupKey encodes the group values as JSON so that equal values share a key.
// Missing fields group with null.
func (g *GroupBy) groupKey(row core.Record) (string, []interface{}, error) {
	values := make([]interface{}, len(g.groupFields))
	normalized := make([]interface{}, len(g.groupFields))
	for i, field := range g.groupFields {
		values[i] = row.Value(field)
		normalized[i] = normalize(values[i])
	}
	key, err := json.Marshal(normalized)
	if err != nil {
		return "", nil, fmt.Errorf("cannot group by %v: %w", g.groupFields, err)
	}
	return string(key), values, nil
}

// normalize maps numbers to one canonical form so 18, 18.0 and json.Number("18") group together.
func normalize(value interface{}) interface{} {
	switch value.(type) {
	case json.Number, int, int32, int64, float32, float64:
		if n, err := core.ToNum(value); err == nil {
			return n
		}
	}
	return value
}

// CountAggregator counts the number of rows
type CountAggregator struct {
	count int
}

func (c *CountAggregator) Add(context.Context, core.Record) error {
	c.count++
	return nil
}

func (c *CountAggregator) Result() (interface{}, error) {
	return c.count, nil
}

func (c *CountAggregator) Clone() Aggregator {
	return &CountAggregator{}
}

// SumAggregator sums numeric values; other values are skipped
type SumAggregator struct {
	Field string
	sum   float64
}

func (s *SumAggregator) Add(_ context.Context, record core.Record) error {
	if num, ok := number(record, s.Field); ok {
		s.sum += num
	}
	return nil
}

func (s *SumAggregator) Result() (interface{}, error) {
	return s.sum, nil
}

func (s *SumAggregator) Clone() Aggregator {
	return &SumAggregator{Field: s.Field}
}

// AvgAggregator calculates the average of numeric values, or null without any
type AvgAggregator struct {
	Field string
	sum   float64
	count int
}

func (a *AvgAggregator) Add(_ context.Context, record core.Record) error {
	if num, ok := number(record, a.Field); ok {
		a.sum += num
		a.count++
	}
	return nil
}

func (a *AvgAggregator) Result() (interface{}, error) {
	if a.count == 0 {
		return nil, nil
	}
	return a.sum / float64(a.count), nil
}

func (a *AvgAggregator) Clone() Aggregator {
	return &AvgAggregator{Field: a.Field}
}

// MinAggregator finds the minimum numeric value
type MinAggregator struct {
	Field string
	min   interface{}
	num   float64
}

func (m *MinAggregator) Add(_ context.Context, record core.Record) error {
	if num, ok := number(record, m.Field); ok && (m.min == nil || num < m.num) {
		m.min, m.num = record.Value(m.Field), num
	}
	return nil
}

func (m *MinAggregator) Result() (interface{}, error) {
	return m.min, nil
}

func (m *MinAggregator) Clone() Aggregator {
	return &MinAggregator{Field: m.Field}
}

// MaxAggregator finds the maximum numeric value
type MaxAggregator struct {
	Field string
	max   interface{}
	num   float64
}

func (m *MaxAggregator) Add(_ context.Context, record core.Record) error {
	if num, ok := number(record, m.Field); ok && (m.max == nil || num > m.num) {
		m.max, m.num = record.Value(m.Field), num
	}
	return nil
}

func (m *MaxAggregator) Result() (interface{}, error) {
	return m.max, nil
}

func (m *MaxAggregator) Clone() Aggregator {
	return &MaxAggregator{Field: m.Field}
}

func number(record core.Record, field string) (float64, bool) {
	value := record.Value(field)
	if value == nil {
		return 0, false
	}
	if _, isString := value.(string); isString {
		return 0, false
	}
	if _, isBool := value.(bool); isBool {
		return 0, false
	}
	num, err := core.ToNum(value)
	return num, err == nil
}
