// Package identity is the boundary to the external identity
// collaborator. The engine only needs a verified caller identity and a
// privileged flag; how tokens are minted is out of scope.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/sss97133/nuke-sub012/internal/domain"
)

// Identity is a verified caller.
type Identity struct {
	UserID     string
	Privileged bool
}

// Verifier resolves a bearer token to an Identity. Unknown or empty
// tokens fail with an AuthorizationError.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// StaticVerifier is a fixed token table for development and tests.
type StaticVerifier map[string]Identity

func (v StaticVerifier) Verify(_ context.Context, token string) (Identity, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return Identity{}, &domain.AuthorizationError{Message: "unknown or missing token"}
}

// ParseStaticTokens parses "token:user[:admin],token:user,..." into a
// StaticVerifier.
func ParseStaticTokens(spec string) (StaticVerifier, error) {
	v := StaticVerifier{}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
			return nil, fmt.Errorf("bad token entry %q: want token:user[:admin]", part)
		}
		id := Identity{UserID: fields[1]}
		if len(fields) > 2 && fields[2] == "admin" {
			id.Privileged = true
		}
		v[fields[0]] = id
	}
	return v, nil
}
