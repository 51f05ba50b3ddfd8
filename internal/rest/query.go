package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// filterOp is the closed set of filter operators the backend accepts.
type filterOp string

const (
	opEq   filterOp = "eq"
	opNeq  filterOp = "neq"
	opGt   filterOp = "gt"
	opGte  filterOp = "gte"
	opLt   filterOp = "lt"
	opLte  filterOp = "lte"
	opLike filterOp = "like"
	opIn   filterOp = "in"
)

type filter struct {
	column    string
	condition string // operator-prefixed value, e.g. "eq.ACTIVO"
}

// QueryBuilder accumulates filter/order/select/limit state for one
// request against one table. Filters combine conjunctively. Column
// names pass through untrusted and unvalidated; the backend schema is
// authoritative. A builder serves a single Execute/Insert/Update/
// Delete call and is then discarded.
type QueryBuilder struct {
	client     *Client
	table      string
	selectCols string
	filters    []filter
	order      string
	limit      int
	single     bool
}

// Select sets the column list. Defaults to "*".
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	if columns == "" {
		columns = "*"
	}
	q.selectCols = columns
	return q
}

func (q *QueryBuilder) addFilter(op filterOp, column string, value any) *QueryBuilder {
	q.filters = append(q.filters, filter{
		column:    column,
		condition: string(op) + "." + formatValue(value),
	})
	return q
}

func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder  { return q.addFilter(opEq, column, value) }
func (q *QueryBuilder) Neq(column string, value any) *QueryBuilder { return q.addFilter(opNeq, column, value) }
func (q *QueryBuilder) Gt(column string, value any) *QueryBuilder  { return q.addFilter(opGt, column, value) }
func (q *QueryBuilder) Gte(column string, value any) *QueryBuilder { return q.addFilter(opGte, column, value) }
func (q *QueryBuilder) Lt(column string, value any) *QueryBuilder  { return q.addFilter(opLt, column, value) }
func (q *QueryBuilder) Lte(column string, value any) *QueryBuilder { return q.addFilter(opLte, column, value) }

// Like filters on a pattern; % wildcards pass through to the backend.
func (q *QueryBuilder) Like(column string, pattern string) *QueryBuilder {
	return q.addFilter(opLike, column, pattern)
}

// In filters on membership in values, encoded as in.(v1,v2,...).
func (q *QueryBuilder) In(column string, values []any) *QueryBuilder {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatValue(v)
	}
	q.filters = append(q.filters, filter{
		column:    column,
		condition: string(opIn) + ".(" + strings.Join(parts, ",") + ")",
	})
	return q
}

// Order sets the sort column and direction. Later calls replace
// earlier ones; the backend takes a single order parameter here.
func (q *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	direction := "asc"
	if !ascending {
		direction = "desc"
	}
	q.order = column + "." + direction
	return q
}

func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Single collapses the array response to its first element. An empty
// result yields (nil, nil): not-found is a valid answer, not an error.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.single = true
	return q
}

// encode serializes the accumulated state as the request query
// string: one parameter per filter, URL-component-encoded.
func (q *QueryBuilder) encode(includeRead bool) string {
	params := url.Values{}
	if includeRead {
		params.Set("select", q.selectCols)
		if q.order != "" {
			params.Set("order", q.order)
		}
		if q.limit > 0 {
			params.Set("limit", strconv.Itoa(q.limit))
		}
	}
	for _, f := range q.filters {
		params.Add(f.column, f.condition)
	}
	return params.Encode()
}

func (q *QueryBuilder) tableURL(query string) string {
	u := q.client.baseURL + "/rest/v1/" + q.table
	if query != "" {
		u += "?" + query
	}
	return u
}

// Execute issues the accumulated read as one GET, retried per the
// client's read policy.
func (q *QueryBuilder) Execute(ctx context.Context) (json.RawMessage, error) {
	data, err := q.client.getWithRetry(ctx, q.tableURL(q.encode(true)))
	if err != nil {
		return nil, err
	}
	if q.single {
		return collapseSingle(data), nil
	}
	return data, nil
}

// ExecuteInto runs Execute and decodes the response into dest. With
// Single and an empty result, dest is left untouched and ok is false.
func (q *QueryBuilder) ExecuteInto(ctx context.Context, dest any) (bool, error) {
	data, err := q.Execute(ctx)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Insert POSTs data as the JSON body. Accumulated filters do not
// apply to inserts and are ignored.
func (q *QueryBuilder) Insert(ctx context.Context, data any) (json.RawMessage, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return q.client.do(ctx, http.MethodPost, q.tableURL(""), body)
}

// Update PATCHes rows matching the accumulated filters. A filterless
// update would rewrite the whole table, so it is rejected before any
// network I/O.
func (q *QueryBuilder) Update(ctx context.Context, data any) (json.RawMessage, error) {
	if len(q.filters) == 0 {
		return nil, &PreconditionError{Op: "update", Table: q.table, Reason: "no filters accumulated"}
	}
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return q.client.do(ctx, http.MethodPatch, q.tableURL(q.encode(false)), body)
}

// Delete removes rows matching the accumulated filters, with the same
// filterless guard as Update.
func (q *QueryBuilder) Delete(ctx context.Context) (json.RawMessage, error) {
	if len(q.filters) == 0 {
		return nil, &PreconditionError{Op: "delete", Table: q.table, Reason: "no filters accumulated"}
	}
	return q.client.do(ctx, http.MethodDelete, q.tableURL(q.encode(false)), nil)
}

// collapseSingle maps an array response to its first element, or nil
// when the array is empty. Non-array bodies pass through unchanged.
func collapseSingle(data json.RawMessage) json.RawMessage {
	if data == nil {
		return nil
	}
	parsed := gjson.ParseBytes(data)
	if !parsed.IsArray() {
		return data
	}
	arr := parsed.Array()
	if len(arr) == 0 {
		return nil
	}
	return json.RawMessage(arr[0].Raw)
}

// formatValue renders a filter value the way the wire syntax expects.
func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		encoded, _ := json.Marshal(v)
		return strings.Trim(string(encoded), `"`)
	}
}
