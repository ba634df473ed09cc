package flow

// Target is the outcome of resolving a navigation reference.
// The zero value means "defer to the fallback source for this direction".
type Target struct {
	// ID is the step to go to. Ignored when End is true.
	ID string
	// End marks an explicit termination of the flow (or of this path).
	End bool
}

// Deferred reports whether the target defers to the fallback source.
func (t Target) Deferred() bool {
	return !t.End && t.ID == ""
}

// TargetFunc computes a navigation target from the current context.
// Returning the zero Target defers to the fallback source.
type TargetFunc func(*Context) Target

type refKind uint8

const (
	refAbsent refKind = iota
	refEnd
	refLiteral
	refComputed
)

// Ref is a navigation reference on a step: absent, an explicit flow end,
// a literal step ID, or a function of the context. The zero Ref is absent.
type Ref struct {
	kind   refKind
	target string
	fn     TargetFunc
}

// RefTo returns a literal reference to the given step ID.
func RefTo(id string) Ref {
	return Ref{kind: refLiteral, target: id}
}

// RefEnd returns a reference that explicitly terminates the flow.
func RefEnd() Ref {
	return Ref{kind: refEnd}
}

// RefFunc returns a reference computed from the context at resolution time.
func RefFunc(fn TargetFunc) Ref {
	if fn == nil {
		return Ref{}
	}
	return Ref{kind: refComputed, fn: fn}
}

// IsZero reports whether the reference is absent.
func (r Ref) IsZero() bool {
	return r.kind == refAbsent
}

// LiteralID returns the referenced step ID when the reference is a
// literal, so definition validators can check it without a context.
func (r Ref) LiteralID() (string, bool) {
	if r.kind != refLiteral {
		return "", false
	}
	return r.target, true
}

// Resolve evaluates the reference against the context.
// Absent references (and computed references returning the zero Target)
// resolve to a deferred Target.
func (r Ref) Resolve(fc *Context) Target {
	switch r.kind {
	case refEnd:
		return Target{End: true}
	case refLiteral:
		return Target{ID: r.target}
	case refComputed:
		return r.fn(fc)
	default:
		return Target{}
	}
}
