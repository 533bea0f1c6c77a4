package harness

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/qkdtools/cascade/internal/cascade"
	"github.com/qkdtools/cascade/internal/store"
)

// validIdentifier matches valid SQL identifiers (column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string               // Assertion type for categorization
	Expected string               // Human-readable expected outcome
	Actual   string               // Human-readable actual outcome
	Trace    []cascade.TraceEvent // Full transcript for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull transcript:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s pass=%d block=%d index=%d\n",
				event.Seq, event.Type, event.Pass, event.Block, event.Index)
		}
	}

	return buf.String()
}

// AssertionContext provides database access for run_state assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates every assertion against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for run_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertEventContains:
			err = assertEventContains(result.Trace, assertion)
		case AssertEventOrder:
			err = assertEventOrder(result.Trace, assertion)
		case AssertEventCount:
			err = assertEventCount(result.Trace, assertion)
		case AssertRunState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: run_state requires database context", i)
			} else {
				err = assertRunState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertEventContains checks if the transcript contains an event
// matching the specified type and fields (subset match).
func assertEventContains(trace []cascade.TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matchEvent(event, assertion) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertEventContains,
		Expected: describeEventMatch(assertion),
		Actual:   "not found in transcript",
		Trace:    trace,
	}
}

// matchEvent reports whether an event satisfies an event_contains
// assertion. Nil filter fields match anything.
func matchEvent(event cascade.TraceEvent, assertion Assertion) bool {
	if string(event.Type) != assertion.Event {
		return false
	}
	if assertion.Pass != nil && event.Pass != *assertion.Pass {
		return false
	}
	if assertion.Block != nil && event.Block != *assertion.Block {
		return false
	}
	if assertion.Index != nil && event.Index != *assertion.Index {
		return false
	}
	return true
}

func describeEventMatch(assertion Assertion) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "event %s", assertion.Event)
	if assertion.Pass != nil {
		fmt.Fprintf(&buf, " pass=%d", *assertion.Pass)
	}
	if assertion.Block != nil {
		fmt.Fprintf(&buf, " block=%d", *assertion.Block)
	}
	if assertion.Index != nil {
		fmt.Fprintf(&buf, " index=%d", *assertion.Index)
	}
	return buf.String()
}

// assertEventOrder checks if event types appear in the specified order.
// Events don't need to be consecutive (intervening events are allowed).
func assertEventOrder(trace []cascade.TraceEvent, assertion Assertion) error {
	// Find first position of each expected event type
	positions := make(map[string]int)

	for i, event := range trace {
		for _, expected := range assertion.Events {
			if string(event.Type) == expected && positions[expected] == 0 {
				positions[expected] = i + 1 // 1-indexed for readability
			}
		}
	}

	for _, eventType := range assertion.Events {
		if positions[eventType] == 0 {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("all events present: %v", assertion.Events),
				Actual:   fmt.Sprintf("missing event: %s", eventType),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Events); i++ {
		prev := assertion.Events[i-1]
		curr := assertion.Events[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertEventCount checks if the event type appears exactly the
// specified number of times.
func assertEventCount(trace []cascade.TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if string(event.Type) == assertion.Event {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertRunState checks if the stored run record contains expected
// values. Queries the runs table with parameterized SQL and validates
// expected values using subset semantics.
//
// Security: Column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertRunState(ctx context.Context, st *store.Store, assertion Assertion) error {
	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err // Identifier validation failed
	}

	query := "SELECT * FROM runs"
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertRunState,
			Expected: "query runs table",
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertRunState,
			Expected: fmt.Sprintf("run record where %s", formatWhereClause(assertion.Where)),
			Actual:   "record not found",
		}
	}

	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan run record: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertRunState,
			Expected: fmt.Sprintf("exactly one record where %s", formatWhereClause(assertion.Where)),
			Actual:   "multiple records matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]interface{})
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	// Subset semantics - only check columns named in Expect
	for key, expectedValue := range assertion.Expect {
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertRunState,
				Expected: fmt.Sprintf("column %q to exist", key),
				Actual:   fmt.Sprintf("column %q not present, have: %v", key, columns),
			}
		}

		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertRunState,
				Expected: fmt.Sprintf("column %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("column %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// stateValuesEqual compares an expected YAML value against a SQLite
// column value. SQLite returns int64 for integers and string for text;
// YAML parses integers as int, so numeric comparison normalizes both.
func stateValuesEqual(expected, actual interface{}) bool {
	switch exp := expected.(type) {
	case int:
		return asInt64(actual) == int64(exp)
	case int64:
		return asInt64(actual) == exp
	case float64:
		act, ok := actual.(float64)
		return ok && act == exp
	case string:
		act, ok := actual.(string)
		return ok && act == exp
	case bool:
		// SQLite stores booleans as 0/1 integers
		want := int64(0)
		if exp {
			want = 1
		}
		return asInt64(actual) == want
	default:
		return fmt.Sprintf("%v", expected) == fmt.Sprintf("%v", actual)
	}
}

func asInt64(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	default:
		return -1 << 62 // sentinel that never matches a run column
	}
}

// buildWhereClause constructs a parameterized WHERE clause.
// Returns SQL fragment, arguments slice, and error. Keys are sorted for
// determinism.
//
// Security: Column names are validated against a whitelist pattern to
// prevent SQL injection via identifier interpolation.
func buildWhereClause(where map[string]interface{}) (string, []interface{}, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))

	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, where[key])
	}

	return strings.Join(clauses, " AND "), args, nil
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]interface{}) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}
