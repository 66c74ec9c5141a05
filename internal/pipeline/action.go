// Package pipeline models the compiled actions of a data pipeline and the
// tag-based selection used to execute a subset of them.
//
// An Action is one unit of pipeline work (a table, view, incremental model,
// assertion, declaration, or operation) as reported by a compilation result.
// Actions carry descriptive tags; callers select actions to run by supplying
// a tag query that every selected action must fully satisfy (AND semantics).
package pipeline

// ActionType categorizes what kind of pipeline object an action produces.
type ActionType string

const (
	TypeTable       ActionType = "table"
	TypeView        ActionType = "view"
	TypeIncremental ActionType = "incremental"
	TypeAssertion   ActionType = "assertion"
	TypeDeclaration ActionType = "declaration"
	TypeOperation   ActionType = "operation"
)

// Target identifies the database object an action produces. It is carried
// alongside the display id because the id cannot be parsed back apart:
// legacy domain-scoped project ids contain dots themselves.
type Target struct {
	Database string `json:"database"`
	Schema   string `json:"schema"`
	Name     string `json:"name"`
}

// Action is a single compiled pipeline action. It is immutable for the
// duration of a filter call; tags are opaque strings and are never parsed.
type Action struct {
	// ID is the action's display identifier, typically
	// "database.schema.name" or a file path.
	ID string `json:"id"`

	// Target is the structured object reference behind ID.
	Target Target `json:"target"`

	// Type is the action's object type.
	Type ActionType `json:"type"`

	// Tags are the descriptive labels declared on the action,
	// in declaration order.
	Tags []string `json:"tags,omitempty"`
}

// HasAllTags reports whether every tag in query is present on the action.
// An empty query matches nothing by decision: selecting "everything" must
// be an explicit workflow execution, not an accidental empty filter.
func (a Action) HasAllTags(query []string) bool {
	if len(query) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a.Tags))
	for _, t := range a.Tags {
		set[t] = struct{}{}
	}
	for _, q := range query {
		if _, ok := set[q]; !ok {
			return false
		}
	}
	return true
}
