package credential

import (
	"strings"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const anonymousPrefix = "anonymous-"

// IdentityResolver determines the identity a request's quota usage is
// attributed to.
type IdentityResolver struct {
	jwtSecret []byte
}

// NewIdentityResolver creates an identity resolver. secret enables verifying
// bearer tokens; when empty, tokens are ignored.
func NewIdentityResolver(secret string) *IdentityResolver {
	var key []byte
	if secret != "" {
		key = []byte(secret)
	}
	return &IdentityResolver{jwtSecret: key}
}

// Resolve picks the request identity: the explicit identity header wins,
// then the subject of a verified bearer token, then a generated anonymous
// identity. Anonymous identities are regenerated per request, so anonymous
// callers never accumulate quota pressure.
func (r *IdentityResolver) Resolve(headerID, authorization string) string {
	if id := strings.TrimSpace(headerID); id != "" {
		return id
	}
	if sub := r.subjectFromBearer(authorization); sub != "" {
		return sub
	}
	return anonymousPrefix + uuid.New().String()
}

// IsAnonymous reports whether id is a generated per-request identity.
func IsAnonymous(id string) bool {
	return strings.HasPrefix(id, anonymousPrefix)
}

// subjectFromBearer verifies an "Authorization: Bearer <jwt>" header and
// returns its subject claim. Any parse or verification failure yields "".
func (r *IdentityResolver) subjectFromBearer(authorization string) string {
	if len(r.jwtSecret) == 0 {
		return ""
	}
	token, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || token == "" {
		return ""
	}

	claims := &gojwt.RegisteredClaims{}
	parsed, err := gojwt.ParseWithClaims(token, claims, func(t *gojwt.Token) (any, error) {
		if _, ok := t.Method.(*gojwt.SigningMethodHMAC); !ok {
			return nil, gojwt.ErrSignatureInvalid
		}
		return r.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return ""
	}
	return claims.Subject
}
