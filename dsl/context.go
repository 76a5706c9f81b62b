package dsl

// Collection is an ordered sequence of items. Items are either field maps
// (map[string]any) or scalars produced by a map stage. Every pipeline stage
// returns a fresh Collection; the input is never mutated.
type Collection struct {
	Name  string
	Items []any
}

// Len returns the number of items.
func (c Collection) Len() int { return len(c.Items) }

// Context maps collection names to concrete Collections. It is populated
// from caller-supplied DAW session state before parsing begins and is
// read-only during one parse/evaluate pass. Build a fresh Context per
// invocation; it is never cached across requests.
type Context struct {
	collections map[string]Collection
}

// NewContext returns an empty evaluation context.
func NewContext() *Context {
	return &Context{collections: make(map[string]Collection)}
}

// BuildContext lifts every list-valued entry out of a DAW state snapshot and
// registers it as a named collection. The snapshot may be wrapped in a
// top-level "state" key, which the DAW sends on every request.
func BuildContext(state map[string]any) *Context {
	ctx := NewContext()
	if state == nil {
		return ctx
	}
	stateMap := state
	if inner, ok := state["state"].(map[string]any); ok {
		stateMap = inner
	}
	for name, value := range stateMap {
		if items, ok := value.([]any); ok {
			ctx.Register(name, items)
		}
	}
	return ctx
}

// Register adds a named collection. Meant for context construction only;
// the context must not change during evaluation.
func (c *Context) Register(name string, items []any) {
	c.collections[name] = Collection{Name: name, Items: items}
}

// Collection resolves a collection by name.
func (c *Context) Collection(name string) (Collection, bool) {
	col, ok := c.collections[name]
	return col, ok
}

// iterVarFor derives the iteration variable name from a collection name:
// tracks -> track, fx_chain -> fx, clips -> clip. Predicates may prefix
// field paths with this variable (track.name) or omit it (name).
func iterVarFor(collectionName string) string {
	name := collectionName
	if n := len(name); n > 6 && name[n-6:] == "_chain" {
		name = name[:n-6]
	}
	if n := len(name); n > 1 && name[n-1] == 's' {
		name = name[:n-1]
	}
	if len(name) < 2 {
		return "item"
	}
	return name
}
