package aggregator

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
	"github.com/pulseboard/pulseboard-backend-go/pkg/errors"
)

// trendEpsilon is the relative change below which a metric counts as stable.
const trendEpsilon = 0.01

// Aggregate filters raw rows, groups them by the declared dimensions,
// computes each metric per group, and attaches a summary over the whole
// filtered row set. The computation is pure and deterministic: shuffling
// the input row order does not change the output.
func Aggregate(rows []types.Row, metrics []types.MetricSpec, dimensions []types.DimensionSpec, filters []types.FilterSpec) (*types.ResultTable, error) {
	formulas, err := parseFormulas(metrics)
	if err != nil {
		return nil, err
	}

	filtered := applyFilters(rows, filters)
	groups := groupRows(filtered, dimensions)

	outRows := make([]types.Row, 0, len(groups))
	for _, g := range groups {
		row := make(types.Row, len(dimensions)+len(metrics))
		for _, d := range dimensions {
			row[d.Field] = g.dims[d.Field]
		}

		vars := make(map[string]float64, len(metrics))
		for _, m := range metrics {
			if m.Method == types.AggCustom {
				continue
			}
			val, err := computeMetric(g.rows, m)
			if err != nil {
				return nil, err
			}
			if val == nil {
				row[m.Field] = nil
				continue
			}
			row[m.Field] = *val
			vars[m.Field] = *val
		}

		// Formulas run after all plain metrics are in place.
		for _, m := range metrics {
			if m.Method != types.AggCustom {
				continue
			}
			result, evalErr := formulas[m.Field].Eval(vars)
			if evalErr != nil {
				// References were validated upfront, so a failure here
				// means a variable had no data or the math degenerated.
				row[m.Field] = nil
				continue
			}
			row[m.Field] = result
		}

		outRows = append(outRows, row)
	}

	summary, err := buildSummary(filtered, outRows, metrics, formulas)
	if err != nil {
		return nil, err
	}

	return &types.ResultTable{
		Columns: buildColumns(metrics, dimensions),
		Rows:    outRows,
		Summary: summary,
	}, nil
}

// ValidateMetrics checks metric declarations, including that every
// custom formula parses and references only non-custom metric fields.
// Called at entity registration so bad formulas never surface mid-schedule.
func ValidateMetrics(metrics []types.MetricSpec) error {
	defined := make(map[string]struct{}, len(metrics))
	for _, m := range metrics {
		if m.Method != types.AggCustom {
			defined[m.Field] = struct{}{}
		}
	}

	for _, m := range metrics {
		switch m.Method {
		case types.AggSum, types.AggAvg, types.AggCount, types.AggMin, types.AggMax, types.AggDistinct:
			if m.Formula != "" {
				return errors.NewConfigurationError("metric %s: formula is only valid with the custom method", m.Field)
			}
		case types.AggCustom:
			if m.Formula == "" {
				return errors.NewConfigurationError("metric %s: custom method requires a formula", m.Field)
			}
			f, err := ParseFormula(m.Formula)
			if err != nil {
				return errors.NewConfigurationError("metric %s: %v", m.Field, err)
			}
			for _, v := range f.Vars() {
				if _, ok := defined[v]; !ok {
					return errors.NewConfigurationError("metric %s: formula references undefined variable %q", m.Field, v)
				}
			}
		default:
			return errors.NewConfigurationError("metric %s: unknown aggregation method %q", m.Field, m.Method)
		}
	}
	return nil
}

func parseFormulas(metrics []types.MetricSpec) (map[string]*Formula, error) {
	if err := ValidateMetrics(metrics); err != nil {
		return nil, err
	}
	formulas := make(map[string]*Formula)
	for _, m := range metrics {
		if m.Method != types.AggCustom {
			continue
		}
		f, err := ParseFormula(m.Formula)
		if err != nil {
			return nil, errors.NewConfigurationError("metric %s: %v", m.Field, err)
		}
		formulas[m.Field] = f
	}
	return formulas, nil
}

// applyFilters keeps the rows matching the filter chain. Each filter's
// combinator joins it with the running result of the filters before it,
// evaluated left to right with short-circuiting.
func applyFilters(rows []types.Row, filters []types.FilterSpec) []types.Row {
	if len(filters) == 0 {
		return rows
	}

	out := make([]types.Row, 0, len(rows))
	for _, row := range rows {
		result := matchFilter(row, filters[0])
		for _, f := range filters[1:] {
			if f.Combinator == types.CombinatorOr {
				if result {
					continue
				}
				result = matchFilter(row, f)
			} else {
				if !result {
					continue
				}
				result = matchFilter(row, f)
			}
		}
		if result {
			out = append(out, row)
		}
	}
	return out
}

func matchFilter(row types.Row, f types.FilterSpec) bool {
	value, exists := row[f.Field]
	if !exists {
		return false
	}

	switch f.Operator {
	case types.OpEquals:
		return compareEqual(value, f.Value)
	case types.OpNotEquals:
		return !compareEqual(value, f.Value)
	case types.OpGreater, types.OpGreaterEq, types.OpLess, types.OpLessEq:
		lhs, lok := toFloat(value)
		rhs, rok := toFloat(f.Value)
		if !lok || !rok {
			return false
		}
		switch f.Operator {
		case types.OpGreater:
			return lhs > rhs
		case types.OpGreaterEq:
			return lhs >= rhs
		case types.OpLess:
			return lhs < rhs
		default:
			return lhs <= rhs
		}
	case types.OpContains:
		return strings.Contains(stringify(value), stringify(f.Value))
	case types.OpIn:
		for _, candidate := range f.Values {
			if compareEqual(value, candidate) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func compareEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return stringify(a) == stringify(b)
}

type group struct {
	sortKey string
	dims    map[string]interface{}
	rows    []types.Row
}

// groupRows buckets rows by the dimension values and returns groups in a
// deterministic order independent of the input row order.
func groupRows(rows []types.Row, dimensions []types.DimensionSpec) []*group {
	if len(dimensions) == 0 {
		if len(rows) == 0 {
			return nil
		}
		return []*group{{dims: map[string]interface{}{}, rows: rows}}
	}

	byKey := make(map[string]*group)
	for _, row := range rows {
		var keyParts []string
		dims := make(map[string]interface{}, len(dimensions))
		for _, d := range dimensions {
			label, sortPart := dimensionValue(row[d.Field], d)
			dims[d.Field] = label
			keyParts = append(keyParts, sortPart)
		}
		key := strings.Join(keyParts, "\x00")
		g, ok := byKey[key]
		if !ok {
			g = &group{sortKey: key, dims: dims}
			byKey[key] = g
		}
		g.rows = append(g.rows, row)
	}

	groups := make([]*group, 0, len(byKey))
	for _, g := range byKey {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].sortKey < groups[j].sortKey })
	return groups
}

// dimensionValue resolves a raw value to its output label and a sortable
// key component, applying bucketing when declared.
func dimensionValue(raw interface{}, d types.DimensionSpec) (interface{}, string) {
	if d.Bucket != nil {
		num, ok := toFloat(raw)
		if !ok {
			return "other", "zzz\x01other"
		}
		if d.Bucket.Size > 0 {
			start := math.Floor(num/d.Bucket.Size) * d.Bucket.Size
			label := fmt.Sprintf("[%s, %s)", trimFloat(start), trimFloat(start+d.Bucket.Size))
			return label, fmt.Sprintf("%020.6f", start)
		}
		for _, r := range d.Bucket.Ranges {
			if num >= r.Min && num < r.Max {
				return r.Label, fmt.Sprintf("%020.6f", r.Min)
			}
		}
		return "other", "zzz\x01other"
	}

	if raw == nil {
		return nil, ""
	}
	if num, ok := toFloat(raw); ok && d.Type == types.DimNumber {
		return raw, fmt.Sprintf("%020.6f", num)
	}
	s := stringify(raw)
	return raw, s
}

// computeMetric folds the group's values for one non-custom metric.
// A field present but non-numeric under a numeric method fails the
// aggregation; a missing field is simply skipped.
func computeMetric(rows []types.Row, m types.MetricSpec) (*float64, error) {
	switch m.Method {
	case types.AggCount:
		n := 0
		for _, row := range rows {
			if _, exists := row[m.Field]; exists {
				n++
			}
		}
		v := float64(n)
		return &v, nil

	case types.AggDistinct:
		seen := make(map[string]struct{})
		for _, row := range rows {
			if value, exists := row[m.Field]; exists {
				seen[stringify(value)] = struct{}{}
			}
		}
		v := float64(len(seen))
		return &v, nil
	}

	var values []float64
	for _, row := range rows {
		raw, exists := row[m.Field]
		if !exists || raw == nil {
			continue
		}
		num, ok := toFloat(raw)
		if !ok {
			return nil, errors.NewAggregationError(nil, "field %s: non-numeric value %v for %s aggregation", m.Field, raw, m.Method)
		}
		values = append(values, num)
	}

	if len(values) == 0 {
		if m.Method == types.AggSum {
			zero := 0.0
			return &zero, nil
		}
		// avg/min/max over nothing is "no data", not zero
		return nil, nil
	}

	switch m.Method {
	case types.AggSum:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return &sum, nil
	case types.AggAvg:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		avg := sum / float64(len(values))
		return &avg, nil
	case types.AggMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return &min, nil
	case types.AggMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return &max, nil
	}
	return nil, errors.NewConfigurationError("unknown aggregation method %q", m.Method)
}

// buildSummary aggregates every metric across the whole filtered row set
// and derives a coarse trend per metric from the ordered group values.
func buildSummary(filtered []types.Row, grouped []types.Row, metrics []types.MetricSpec, formulas map[string]*Formula) (*types.Summary, error) {
	totals := make(map[string]types.MetricValue, len(metrics))
	vars := make(map[string]float64, len(metrics))

	for _, m := range metrics {
		if m.Method == types.AggCustom {
			continue
		}
		val, err := computeMetric(filtered, m)
		if err != nil {
			return nil, err
		}
		if val == nil {
			totals[m.Field] = types.MetricValue{NoData: true}
			continue
		}
		totals[m.Field] = types.MetricValue{Value: *val}
		vars[m.Field] = *val
	}

	for _, m := range metrics {
		if m.Method != types.AggCustom {
			continue
		}
		result, err := formulas[m.Field].Eval(vars)
		if err != nil {
			totals[m.Field] = types.MetricValue{NoData: true}
			continue
		}
		totals[m.Field] = types.MetricValue{Value: result}
	}

	trends := make(map[string]types.TrendDirection, len(metrics))
	for _, m := range metrics {
		trends[m.Field] = metricTrend(grouped, m.Field)
	}

	return &types.Summary{Totals: totals, Trends: trends}, nil
}

// metricTrend compares the first and last group values of a metric. The
// group order is deterministic, so the trend is too.
func metricTrend(rows []types.Row, field string) types.TrendDirection {
	var first, last *float64
	for _, row := range rows {
		if v, ok := toFloat(row[field]); ok {
			if first == nil {
				f := v
				first = &f
			}
			l := v
			last = &l
		}
	}
	if first == nil || last == nil {
		return types.TrendStable
	}

	base := math.Abs(*first)
	if base == 0 {
		base = 1
	}
	change := (*last - *first) / base
	switch {
	case change > trendEpsilon:
		return types.TrendUp
	case change < -trendEpsilon:
		return types.TrendDown
	default:
		return types.TrendStable
	}
}

func buildColumns(metrics []types.MetricSpec, dimensions []types.DimensionSpec) []types.Column {
	columns := make([]types.Column, 0, len(dimensions)+len(metrics))
	for _, d := range dimensions {
		label := d.Label
		if label == "" {
			label = d.Field
		}
		colType := d.Type
		if d.Bucket != nil {
			colType = types.DimString
		}
		columns = append(columns, types.Column{Field: d.Field, Label: label, Type: colType})
	}
	for _, m := range metrics {
		label := m.Label
		if label == "" {
			label = m.Field
		}
		columns = append(columns, types.Column{Field: m.Field, Label: label, Type: types.DimNumber, Format: m.Format})
	}
	return columns
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		if f, ok := toFloat(v); ok {
			return trimFloat(f)
		}
		return fmt.Sprintf("%v", v)
	}
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
