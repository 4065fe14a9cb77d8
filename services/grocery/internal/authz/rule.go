package authz

import (
	"fmt"
	"net/url"
	"strings"

	"groceryapp/pkg/domain"
)

// Location says where a Rule finds the resource id.
type Location int

const (
	// Auto tries the path parameter, then the body field, then the query
	// parameter; the first non-empty value wins.
	Auto Location = iota
	Path
	Query
	// Body reads a string field, or a string array for bulk requests. When the
	// field is absent it falls back to the "ids" array.
	Body
	// BodyArray requires the field to be an array of ids.
	BodyArray
)

func (l Location) String() string {
	switch l {
	case Auto:
		return "request"
	case Path:
		return "path parameters"
	case Query:
		return "query parameters"
	case Body, BodyArray:
		return "request body"
	default:
		return fmt.Sprintf("location(%d)", int(l))
	}
}

func (l Location) readsBody() bool {
	return l == Auto || l == Body || l == BodyArray
}

// Rule declares the ownership check guarding one route.
type Rule struct {
	Resource domain.ResourceType
	// Param is the parameter or field name; "id" by default, "ids" for
	// BodyArray.
	Param string
	From  Location
}

// Validate reports configuration mistakes that must be fixed before serving.
func (r Rule) Validate() error {
	switch r.Resource {
	case domain.ResourceShoppingList, domain.ResourceGroceryItem:
	case "":
		return fmt.Errorf("%w: resource type not specified", ErrRuleMisconfigured)
	default:
		return fmt.Errorf("%w: unknown resource type %q", ErrRuleMisconfigured, r.Resource)
	}
	if r.From < Auto || r.From > BodyArray {
		return fmt.Errorf("%w: unknown location %d", ErrRuleMisconfigured, int(r.From))
	}
	return nil
}

func (r Rule) param() string {
	if p := strings.TrimSpace(r.Param); p != "" {
		return p
	}
	if r.From == BodyArray {
		return "ids"
	}
	return "id"
}

// Input is the request data ExtractIDs reads from.
type Input struct {
	PathValue func(name string) string
	Query     url.Values
	// Body is the decoded JSON object, or nil when the body was empty or not
	// an object.
	Body map[string]any
}

// ExtractIDs returns the non-empty candidate ids named by rule. It fails with
// ErrResourceIDNotFound when the location yields nothing.
func ExtractIDs(in Input, rule Rule) ([]string, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	param := rule.param()
	var ids []string
	switch rule.From {
	case Path:
		ids = fromPath(in, param)
	case Query:
		ids = fromQuery(in, param)
	case Body:
		ids = fromBody(in, param)
		if len(ids) == 0 {
			if arr, ok := in.Body["ids"].([]any); ok {
				ids = stringsOf(arr)
			}
		}
	case BodyArray:
		if arr, ok := in.Body[param].([]any); ok {
			ids = stringsOf(arr)
		}
	case Auto:
		ids = fromPath(in, param)
		if len(ids) == 0 {
			ids = fromBody(in, param)
		}
		if len(ids) == 0 {
			ids = fromQuery(in, param)
		}
	}
	if len(ids) == 0 {
		return nil, missingID(rule)
	}
	return ids, nil
}

func fromPath(in Input, param string) []string {
	if in.PathValue == nil {
		return nil
	}
	if v := strings.TrimSpace(in.PathValue(param)); v != "" {
		return []string{v}
	}
	return nil
}

func fromQuery(in Input, param string) []string {
	return nonEmpty(in.Query[param])
}

func fromBody(in Input, param string) []string {
	switch v := in.Body[param].(type) {
	case string:
		return nonEmpty([]string{v})
	case []any:
		return stringsOf(v)
	default:
		return nil
	}
}

func stringsOf(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return nonEmpty(out)
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
