// internal/app/identity/firebase.go
package identity

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// FirebaseClient is the Firebase Auth-backed identity adapter.
type FirebaseClient struct {
	auth *auth.Client
	log  *zap.Logger
}

// NewFirebaseClient initializes the provider SDK from a service-account
// credentials file.
func NewFirebaseClient(ctx context.Context, credentialsFile string, logger *zap.Logger) (*FirebaseClient, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("init identity provider app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init identity provider auth client: %w", err)
	}
	return &FirebaseClient{auth: client, log: logger}, nil
}

// LookupByEmail returns the identity for email, or ErrNotFound.
func (c *FirebaseClient) LookupByEmail(ctx context.Context, email string) (*Identity, error) {
	rec, err := c.auth.GetUserByEmail(ctx, email)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup identity by email: %w", err)
	}
	return &Identity{UID: rec.UID, Email: rec.Email}, nil
}

// Create registers a new identity with the given credential.
func (c *FirebaseClient) Create(ctx context.Context, email, password string) (*Identity, error) {
	params := (&auth.UserToCreate{}).Email(email).Password(password)
	rec, err := c.auth.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}
	return &Identity{UID: rec.UID, Email: rec.Email}, nil
}

// Delete removes an identity. Used only as the compensating action when
// checkout onboarding fails after creating a brand-new identity.
func (c *FirebaseClient) Delete(ctx context.Context, uid string) error {
	if err := c.auth.DeleteUser(ctx, uid); err != nil {
		return fmt.Errorf("delete identity %s: %w", uid, err)
	}
	return nil
}

// SetClaims replaces the identity's claim set. Tokens issued after this
// call carry the new claims; existing tokens keep the old set until they
// expire or are revoked.
func (c *FirebaseClient) SetClaims(ctx context.Context, uid string, claims Claims) error {
	payload := map[string]interface{}{
		"roles": claims.Roles,
		"paid":  claims.Paid,
	}
	if err := c.auth.SetCustomUserClaims(ctx, uid, payload); err != nil {
		return fmt.Errorf("set claims for %s: %w", uid, err)
	}
	return nil
}

// RevokeSessions invalidates all previously issued claim-bearing
// credentials for the identity, forcing re-authentication so the claim set
// is refreshed.
func (c *FirebaseClient) RevokeSessions(ctx context.Context, uid string) error {
	if err := c.auth.RevokeRefreshTokens(ctx, uid); err != nil {
		return fmt.Errorf("revoke sessions for %s: %w", uid, err)
	}
	return nil
}

// VerifyToken validates an issued token and returns its subject and claim
// set. Used by endpoints that trust provider tokens directly.
func (c *FirebaseClient) VerifyToken(ctx context.Context, token string) (string, Claims, error) {
	t, err := c.auth.VerifyIDToken(ctx, token)
	if err != nil {
		return "", Claims{}, fmt.Errorf("verify token: %w", err)
	}
	var claims Claims
	if paid, ok := t.Claims["paid"].(bool); ok {
		claims.Paid = paid
	}
	if roles, ok := t.Claims["roles"].([]interface{}); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok {
				claims.Roles = append(claims.Roles, s)
			}
		}
	}
	return t.UID, claims, nil
}
