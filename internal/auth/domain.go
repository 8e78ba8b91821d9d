// Package auth resolves bearer credentials into per-request security contexts.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/steepleworks/steeple/internal/shared"
)

// Identity is the stable claim set returned by the external identity provider.
type Identity struct {
	SubjectID string
	Email     string
	Provider  string
}

// Verifier checks a bearer credential with the identity provider. It is a
// black box to this core; only the resulting claims matter.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// UserinfoVerifier verifies tokens against an OIDC-style userinfo endpoint.
// Calls fail closed: any error, including a timeout, reads as unauthenticated.
type UserinfoVerifier struct {
	endpoint string
	provider string
	timeout  time.Duration
	client   *http.Client
}

// NewUserinfoVerifier constructs a verifier with a bounded call timeout.
func NewUserinfoVerifier(endpoint, provider string, timeout time.Duration) *UserinfoVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &UserinfoVerifier{
		endpoint: endpoint,
		provider: provider,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

type userinfoResponse struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
}

// Verify calls the userinfo endpoint with the presented token.
func (v *UserinfoVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return Identity{}, shared.ErrUnauthenticated
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: identity provider unreachable", shared.ErrUnauthenticated)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, shared.ErrUnauthenticated
	}
	var body userinfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Identity{}, shared.ErrUnauthenticated
	}
	if body.Sub == "" || body.Email == "" {
		return Identity{}, shared.ErrUnauthenticated
	}
	return Identity{
		SubjectID: body.Sub,
		Email:     strings.TrimSpace(body.Email),
		Provider:  v.provider,
	}, nil
}
