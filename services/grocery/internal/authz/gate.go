package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"groceryapp/internal/util"
	"groceryapp/pkg/domain"
	"groceryapp/services/grocery/internal/audit"
)

// MaxBodyBytes bounds how much of a request body the gate buffers.
const MaxBodyBytes = 1 << 20

// ErrBodyTooLarge is returned when the body exceeds MaxBodyBytes.
var ErrBodyTooLarge = errors.New("request body too large")

// Auditor records denials.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// Gate runs the ownership check declared by a Rule before a handler.
type Gate struct {
	authz   *Authorizer
	auditor Auditor
}

// NewGate constructs a Gate. auditor may be nil.
func NewGate(a *Authorizer, auditor Auditor) *Gate {
	return &Gate{authz: a, auditor: auditor}
}

// Check extracts the ids named by rule from r and verifies that userID owns
// all of them. When it reads the body, r.Body is replaced with an identical
// reader so the handler sees the original bytes. It returns the checked ids.
func (g *Gate) Check(ctx context.Context, userID string, r *http.Request, rule Rule) ([]string, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	in := Input{PathValue: r.PathValue, Query: r.URL.Query()}
	if rule.From.readsBody() && (rule.From != Auto || strings.TrimSpace(r.PathValue(rule.param())) == "") {
		body, err := bufferBody(r)
		if err != nil {
			return nil, err
		}
		in.Body = decodeObject(body)
	}

	ids, err := ExtractIDs(in, rule)
	if err != nil {
		return nil, err
	}
	ids = distinctIDs(ids)

	var allowed bool
	if len(ids) == 1 {
		allowed, err = g.authz.CheckOwnership(ctx, userID, ids[0], rule.Resource)
	} else {
		allowed, err = g.authz.CheckBulkOwnership(ctx, userID, ids, rule.Resource)
	}
	if err != nil {
		return nil, err
	}
	if !allowed {
		denied := &DeniedError{Resource: string(rule.Resource), Multiple: len(ids) > 1}
		g.recordDenial(ctx, userID, r, rule, ids)
		return nil, denied
	}
	return ids, nil
}

func (g *Gate) recordDenial(ctx context.Context, userID string, r *http.Request, rule Rule, ids []string) {
	util.LoggerFromContext(ctx).Warn("ownership denied",
		"user_id", userID,
		"resource", rule.Resource,
		"ids", len(ids),
		"path", r.URL.Path,
	)
	if g.auditor == nil {
		return
	}
	entityID := ""
	if len(ids) == 1 {
		entityID = ids[0]
	}
	g.auditor.Record(ctx, audit.Entry{
		Action:     domain.AuditAccessDenied,
		EntityType: string(rule.Resource),
		EntityID:   entityID,
		UserID:     userID,
		Metadata: map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"resourceIds": ids,
		},
	})
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if len(data) > MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func decodeObject(data []byte) map[string]any {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	return obj
}
