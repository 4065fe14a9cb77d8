package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"groceryapp/internal/util"
	"groceryapp/pkg/store"
)

// Identity is the canonical caller attached to each authenticated request.
type Identity struct {
	UserID     string
	ExternalID string
	Email      string
	Name       string
	AvatarURL  string
}

type identityContextKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext returns the caller identity, if one was attached.
func FromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

// Resolver exchanges a bearer credential for a local user. It calls the
// provider on every request and keeps no cache.
type Resolver struct {
	provider Provider
	users    store.UserStore
}

// NewResolver constructs a Resolver.
func NewResolver(provider Provider, users store.UserStore) *Resolver {
	return &Resolver{provider: provider, users: users}
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

// Resolve validates the Authorization header value upstream, upserts the
// local user by email and returns the caller identity.
func (r *Resolver) Resolve(ctx context.Context, authorization string) (Identity, error) {
	token, ok := BearerToken(authorization)
	if !ok {
		return Identity{}, fmt.Errorf("%w: no bearer credential provided", ErrUnauthenticated)
	}
	profile, err := r.provider.User(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	if profile.ID == 0 {
		return Identity{}, fmt.Errorf("%w: provider returned no user id", ErrUnauthenticated)
	}
	externalID := strconv.FormatInt(profile.ID, 10)

	email, err := r.resolveEmail(ctx, token, profile, externalID)
	if err != nil {
		return Identity{}, err
	}
	name := profile.Login
	if profile.Name != nil && strings.TrimSpace(*profile.Name) != "" {
		name = strings.TrimSpace(*profile.Name)
	}

	user, err := r.users.UpsertUserByEmail(ctx, email, name)
	if err != nil {
		return Identity{}, fmt.Errorf("upsert user: %w", err)
	}
	if user.Name != "" {
		name = user.Name
	}
	return Identity{
		UserID:     user.ID,
		ExternalID: externalID,
		Email:      user.Email,
		Name:       name,
		AvatarURL:  profile.AvatarURL,
	}, nil
}

// resolveEmail prefers the public profile email, then the verified primary
// address, then a deterministic placeholder derived from the external id.
func (r *Resolver) resolveEmail(ctx context.Context, token string, profile ProviderUser, externalID string) (string, error) {
	if profile.Email != nil && strings.TrimSpace(*profile.Email) != "" {
		return strings.TrimSpace(*profile.Email), nil
	}
	emails, err := r.provider.Emails(ctx, token)
	switch {
	case err == nil:
		for _, e := range emails {
			if e.Primary && e.Verified && strings.TrimSpace(e.Email) != "" {
				return strings.TrimSpace(e.Email), nil
			}
		}
	case errors.Is(err, ErrUnauthenticated):
		// Tokens without the email scope are rejected on this endpoint only.
		util.LoggerFromContext(ctx).Debug("identity email lookup rejected", "external_id", externalID, "err", err)
	default:
		return "", err
	}
	return PlaceholderEmail(externalID), nil
}

// PlaceholderEmail is the synthetic address used when the provider exposes no
// verified primary email.
func PlaceholderEmail(externalID string) string {
	return externalID + "@users.noreply.github.com"
}
