package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/dhawalhost/scimd/internal/resource"
	"github.com/dhawalhost/scimd/internal/schema"
)

// Evaluator matches parsed filters against resource documents. It holds only
// schema references and is safe for concurrent use across many resources.
type Evaluator struct {
	Schema     *schema.Schema
	Extensions []*schema.Schema
}

// NewEvaluator returns an evaluator bound to a core schema and its extension
// schemas.
func NewEvaluator(core *schema.Schema, extensions []*schema.Schema) *Evaluator {
	return &Evaluator{Schema: core, Extensions: extensions}
}

// Matches reports whether the resource satisfies the expression. A nil
// expression matches everything. Comparisons against attributes the schema
// does not define are evaluation errors, never silently false.
func (ev *Evaluator) Matches(expr Expression, res *resource.Resource) (bool, error) {
	if expr == nil {
		return true, nil
	}
	switch e := expr.(type) {
	case LogicalExpression:
		left, err := ev.Matches(e.Left, res)
		if err != nil {
			return false, err
		}
		if e.Op == And && !left {
			return false, nil
		}
		if e.Op == Or && left {
			return true, nil
		}
		return ev.Matches(e.Right, res)
	case NotExpression:
		inner, err := ev.Matches(e.Expr, res)
		if err != nil {
			return false, err
		}
		return !inner, nil
	case PresentExpression:
		return ev.evalAttr(e.Path, "", nil, res)
	case AttributeExpression:
		return ev.evalAttr(e.Path, e.Op, e.Value, res)
	default:
		return false, fmt.Errorf("unsupported filter expression %T", expr)
	}
}

// evalAttr evaluates a comparison or presence test (op == "" means pr).
func (ev *Evaluator) evalAttr(path Path, op CompareOperator, literal any, res *resource.Resource) (bool, error) {
	resolved, err := schema.Resolve(ev.Schema, ev.Extensions, path.URIPrefix, path.Names()...)
	if err != nil {
		return false, err
	}

	container := res.Attributes()
	if resolved.Extension {
		payload, ok := res.Extension(resolved.Schema.ID)
		if !ok {
			return absentResult(op), nil
		}
		container = payload
	}

	value, ok := getFold(container, resolved.Parent.Name)
	if !ok || value == nil {
		return absentResult(op), nil
	}

	if resolved.Parent.MultiValued {
		elems, ok := value.([]any)
		if !ok || len(elems) == 0 {
			return absentResult(op), nil
		}
		for _, elem := range elems {
			hit, err := ev.evalElement(path, resolved, op, literal, elem)
			if err != nil {
				return false, err
			}
			if hit {
				return true, nil
			}
		}
		return false, nil
	}

	if path.ValueFilter != nil {
		return false, &ParseError{Fragment: path.Name, Position: 1, Message: "value filter applied to single-valued attribute"}
	}
	if path.SubAttribute != "" {
		sub, ok := value.(map[string]any)
		if !ok {
			return absentResult(op), nil
		}
		value, ok = getFold(sub, path.SubAttribute)
		if !ok || value == nil {
			return absentResult(op), nil
		}
	}
	if op == "" {
		return present(value), nil
	}
	return compare(resolved.Attribute, op, value, literal)
}

// evalElement applies the value filter and then the outer test to a single
// element of a multi-valued attribute.
func (ev *Evaluator) evalElement(path Path, resolved *schema.ResolvedAttribute, op CompareOperator, literal any, elem any) (bool, error) {
	elemMap, isMap := elem.(map[string]any)
	if path.ValueFilter != nil {
		if !isMap {
			return false, nil
		}
		hit, err := ev.matchElement(path.ValueFilter, resolved.Parent, elemMap)
		if err != nil {
			return false, err
		}
		if !hit {
			return false, nil
		}
	}

	target := elem
	targetDef := resolved.Attribute
	if path.SubAttribute != "" {
		if !isMap {
			return false, nil
		}
		v, ok := getFold(elemMap, path.SubAttribute)
		if !ok || v == nil {
			return false, nil
		}
		target = v
	} else if isMap && resolved.Parent.Type == schema.TypeComplex && op != "" {
		// Comparing a complex element directly targets its "value"
		// sub-attribute.
		v, ok := getFold(elemMap, "value")
		if !ok {
			return false, nil
		}
		target = v
		if sub := resolved.Parent.SubAttribute("value"); sub != nil {
			targetDef = sub
		}
	}

	if op == "" {
		return present(target), nil
	}
	return compare(targetDef, op, target, literal)
}

// MatchesElement evaluates a value-path sub-filter against a single element
// of a multi-valued complex attribute, as the patch processor needs when
// addressing filtered sub-elements. A nil expression matches.
func (ev *Evaluator) MatchesElement(expr Expression, parent *schema.Attribute, elem map[string]any) (bool, error) {
	if expr == nil {
		return true, nil
	}
	return ev.matchElement(expr, parent, elem)
}

// matchElement evaluates a value-path sub-filter against one element of a
// multi-valued complex attribute. Paths inside the sub-filter resolve against
// the parent attribute's sub-attribute definitions.
func (ev *Evaluator) matchElement(expr Expression, parent *schema.Attribute, elem map[string]any) (bool, error) {
	switch e := expr.(type) {
	case LogicalExpression:
		left, err := ev.matchElement(e.Left, parent, elem)
		if err != nil {
			return false, err
		}
		if e.Op == And && !left {
			return false, nil
		}
		if e.Op == Or && left {
			return true, nil
		}
		return ev.matchElement(e.Right, parent, elem)
	case NotExpression:
		inner, err := ev.matchElement(e.Expr, parent, elem)
		if err != nil {
			return false, err
		}
		return !inner, nil
	case PresentExpression:
		sub := parent.SubAttribute(e.Path.Name)
		if sub == nil {
			return false, fmt.Errorf("%q has no sub-attribute %q: %w", parent.Name, e.Path.Name, schema.ErrNoSuchAttribute)
		}
		v, ok := getFold(elem, e.Path.Name)
		return ok && present(v), nil
	case AttributeExpression:
		sub := parent.SubAttribute(e.Path.Name)
		if sub == nil {
			return false, fmt.Errorf("%q has no sub-attribute %q: %w", parent.Name, e.Path.Name, schema.ErrNoSuchAttribute)
		}
		v, ok := getFold(elem, e.Path.Name)
		if !ok || v == nil {
			return absentResult(e.Op), nil
		}
		return compare(sub, e.Op, v, e.Value)
	default:
		return false, fmt.Errorf("unsupported filter expression %T", expr)
	}
}

// absentResult implements the protocol's absent-attribute policy: every
// comparator is false against a missing value except ne, which is true.
func absentResult(op CompareOperator) bool {
	return op == NE
}

func present(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

// compare applies a comparison operator with schema-aware semantics.
func compare(def *schema.Attribute, op CompareOperator, value, literal any) (bool, error) {
	switch def.Type {
	case schema.TypeString, schema.TypeReference, schema.TypeBinary:
		return compareString(def, op, value, literal)
	case schema.TypeBoolean:
		return compareBool(op, value, literal)
	case schema.TypeInteger, schema.TypeDecimal:
		return compareNumber(op, value, literal)
	case schema.TypeDateTime:
		return compareDateTime(op, value, literal)
	case schema.TypeComplex:
		// A complex attribute itself only supports presence, handled earlier.
		return false, &ParseError{Fragment: def.Name, Position: 1, Message: "cannot compare complex attribute"}
	default:
		return false, fmt.Errorf("attribute %q: unsupported type %q", def.Name, def.Type)
	}
}

func compareString(def *schema.Attribute, op CompareOperator, value, literal any) (bool, error) {
	s, ok := value.(string)
	if !ok {
		return false, nil
	}
	l, ok := literal.(string)
	if !ok {
		return op == NE, nil
	}
	if !def.CaseExact {
		s = strings.ToLower(s)
		l = strings.ToLower(l)
	}
	switch op {
	case EQ:
		return s == l, nil
	case NE:
		return s != l, nil
	case CO:
		return strings.Contains(s, l), nil
	case SW:
		return strings.HasPrefix(s, l), nil
	case EW:
		return strings.HasSuffix(s, l), nil
	case GT:
		return s > l, nil
	case GE:
		return s >= l, nil
	case LT:
		return s < l, nil
	case LE:
		return s <= l, nil
	}
	return false, &ParseError{Fragment: string(op), Position: 1, Message: "unknown operator"}
}

func compareBool(op CompareOperator, value, literal any) (bool, error) {
	b, ok := value.(bool)
	if !ok {
		return false, nil
	}
	l, ok := literal.(bool)
	if !ok {
		return op == NE, nil
	}
	switch op {
	case EQ:
		return b == l, nil
	case NE:
		return b != l, nil
	}
	return false, &ParseError{Fragment: string(op), Position: 1, Message: "operator not supported for boolean attributes"}
}

func compareNumber(op CompareOperator, value, literal any) (bool, error) {
	n, ok := toFloat(value)
	if !ok {
		return false, nil
	}
	l, ok := toFloat(literal)
	if !ok {
		return op == NE, nil
	}
	switch op {
	case EQ:
		return n == l, nil
	case NE:
		return n != l, nil
	case GT:
		return n > l, nil
	case GE:
		return n >= l, nil
	case LT:
		return n < l, nil
	case LE:
		return n <= l, nil
	case CO, SW, EW:
		return false, &ParseError{Fragment: string(op), Position: 1, Message: "operator requires a string-typed attribute"}
	}
	return false, &ParseError{Fragment: string(op), Position: 1, Message: "unknown operator"}
}

func compareDateTime(op CompareOperator, value, literal any) (bool, error) {
	vs, ok := value.(string)
	if !ok {
		return false, nil
	}
	ls, ok := literal.(string)
	if !ok {
		return op == NE, nil
	}
	vt, err := time.Parse(time.RFC3339, vs)
	if err != nil {
		return false, nil
	}
	lt, err := time.Parse(time.RFC3339, ls)
	if err != nil {
		return false, &ParseError{Fragment: ls, Position: 1, Message: "malformed dateTime literal"}
	}
	switch op {
	case EQ:
		return vt.Equal(lt), nil
	case NE:
		return !vt.Equal(lt), nil
	case GT:
		return vt.After(lt), nil
	case GE:
		return !vt.Before(lt), nil
	case LT:
		return vt.Before(lt), nil
	case LE:
		return !vt.After(lt), nil
	case CO, SW, EW:
		return false, &ParseError{Fragment: string(op), Position: 1, Message: "operator requires a string-typed attribute"}
	}
	return false, &ParseError{Fragment: string(op), Position: 1, Message: "unknown operator"}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func getFold(m map[string]any, name string) (any, bool) {
	for key, value := range m {
		if strings.EqualFold(key, name) {
			return value, true
		}
	}
	return nil, false
}
