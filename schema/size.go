package schema

import (
	"fmt"

	"github.com/finnur-hlynsson/bitspec/env"
	"github.com/finnur-hlynsson/bitspec/expr"
)

// SizeExprKind tags which form a SizeExpr takes (spec.md §3, SizeExpr).
type SizeExprKind int

const (
	SizeLiteral SizeExprKind = iota
	SizeIdent
	SizeExprKindExpr
)

// SizeExpr resolves to a non-negative integer: a literal, a bare sibling
// field reference, or an arbitrary expression evaluated by package expr.
// The unit (bits vs. bytes vs. elements) is determined by the schema node
// that holds it, per spec.md §3.
type SizeExpr struct {
	Kind    SizeExprKind
	Literal uint64
	Ident   string
	Expr    string
}

// Lit builds a literal SizeExpr.
func Lit(n uint64) *SizeExpr { return &SizeExpr{Kind: SizeLiteral, Literal: n} }

// Ref builds a bare-identifier SizeExpr.
func Ref(name string) *SizeExpr { return &SizeExpr{Kind: SizeIdent, Ident: name} }

// Expr builds an arbitrary-expression SizeExpr.
func Expr(src string) *SizeExpr { return &SizeExpr{Kind: SizeExprKindExpr, Expr: src} }

// IsBareRef reports whether s is a bare reference to a sibling field (not a
// literal, not a compound expression). The write engine's back-patch logic
// (spec §4.3) only defers bare references; a compound expression that
// depends on an unwritten field is an authoring error, not a deferrable
// case, since the engine cannot invert an arbitrary expression.
func (s *SizeExpr) IsBareRef() bool {
	return s != nil && s.Kind == SizeIdent
}

// RefName returns the referenced field name for a bare reference, or "" for
// any other kind.
func (s *SizeExpr) RefName() string {
	if s == nil || s.Kind != SizeIdent {
		return ""
	}
	return s.Ident
}

// Resolve evaluates s against e, producing a non-negative integer. Bound,
// meaning: the referenced name (or every name the expression touches) must
// already be present in e.
func (s *SizeExpr) Resolve(e *env.Env) (uint64, error) {
	switch s.Kind {
	case SizeLiteral:
		return s.Literal, nil
	case SizeIdent:
		v, err := e.Lookup(s.Ident)
		if err != nil {
			return 0, err
		}
		ev, err := expr.FromDocument(v)
		if err != nil {
			return 0, err
		}
		return nonNegativeInt(ev)
	case SizeExprKindExpr:
		v, err := expr.Eval(s.Expr, e.Vars())
		if err != nil {
			return 0, err
		}
		return nonNegativeInt(v)
	default:
		return 0, fmt.Errorf("schema: unknown SizeExpr kind %d", s.Kind)
	}
}

// Bound reports whether every name s depends on is already present in e.
// The codec write engine does not call it; it decides between resolving
// and deferring a back-patch from its own pending placeholders.
func (s *SizeExpr) Bound(e *env.Env) bool {
	switch s.Kind {
	case SizeLiteral:
		return true
	case SizeIdent:
		_, err := e.Lookup(s.Ident)
		return err == nil
	case SizeExprKindExpr:
		_, err := expr.Eval(s.Expr, e.Vars())
		return err == nil
	default:
		return false
	}
}

func nonNegativeInt(v expr.Value) (uint64, error) {
	i, err := v.ToInt64()
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, fmt.Errorf("schema: size expression produced a negative value %d", i)
	}
	return uint64(i), nil
}
