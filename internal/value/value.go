// Package value implements the typed payload carried by game variables,
// pure expression results and signal occurrences.
package value

import "fmt"

// Kind tags the concrete type held by a Value.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindString
	KindPlayer
	KindRule
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindPlayer:
		return "player"
	case KindRule:
		return "rule"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is a closed tagged union over the payload types a Variable or a
// signal occurrence can carry. The fixed set of typed fields means a type
// mismatch is a cheap tag comparison instead of a failed interface
// assertion.
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int
	String string
	Player int
	Rule   int
	List   []Value
}

func Bool(b bool) Value    { return Value{Kind: KindBool, Bool: b} }
func Int(n int) Value      { return Value{Kind: KindInt, Int: n} }
func Str(s string) Value   { return Value{Kind: KindString, String: s} }
func Player(n int) Value   { return Value{Kind: KindPlayer, Player: n} }
func Rule(n int) Value     { return Value{Kind: KindRule, Rule: n} }
func List(vs []Value) Value {
	return Value{Kind: KindList, List: vs}
}

// SameType reports whether v and other carry the same Kind, i.e. whether
// a write of other into a variable currently holding v would type-check.
func (v Value) SameType(other Value) bool {
	return v.Kind == other.Kind
}

// Equal reports structural equality, used by signal-occurrence matching
// (spec.md §9: signals compare by kind + carrier payload, not reference).
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.Bool == other.Bool
	case KindInt:
		return v.Int == other.Int
	case KindString:
		return v.String == other.String
	case KindPlayer:
		return v.Player == other.Player
	case KindRule:
		return v.Rule == other.Rule
	case KindList:
		if len(v.List) != len(other.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(other.List[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Render formats the value for log lines and output text.
func (v Value) Render() string {
	switch v.Kind {
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindString:
		return v.String
	case KindPlayer:
		return fmt.Sprintf("player#%d", v.Player)
	case KindRule:
		return fmt.Sprintf("rule#%d", v.Rule)
	case KindList:
		return fmt.Sprintf("%v", v.List)
	default:
		return "<?>"
	}
}
