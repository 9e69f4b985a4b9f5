package sessions

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/remiverdiesen/agents-at-scale/internal/ledger"
)

// celFilter wraps a compiled CEL program. When disabled, Eval always returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("sequence", cel.IntType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		// parsed payload for field filtering
		cel.Variable("json", cel.DynType),
		cel.Variable("session_id", cel.StringType),
		cel.Variable("query_id", cel.StringType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, iss.Err()
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return celFilter{}, &ledger.ValidationError{Field: "filter", Reason: "expression must evaluate to bool"}
	}
	prog, err := env.Program(ast)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against r. Evaluation errors count
// as a non-match.
func (f celFilter) Eval(r ledger.Record) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(r.Payload, &jsonObj)
	out, _, err := f.prog.Eval(map[string]any{
		"sequence":   int64(r.Sequence),
		"ts_ms":      r.Timestamp.UnixMilli(),
		"size":       int64(len(r.Payload)),
		"text":       string(r.Payload),
		"json":       jsonObj,
		"session_id": r.StreamKey,
		"query_id":   r.CorrelationID,
		"now_ms":     time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// ValidateFilter compiles expr and reports why it cannot be used.
func ValidateFilter(expr string) error {
	if _, err := newCELFilter(expr); err != nil {
		if ledger.IsValidation(err) {
			return err
		}
		return &ledger.ValidationError{Field: "filter", Reason: err.Error()}
	}
	return nil
}
