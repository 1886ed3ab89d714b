package pasetox

import "context"

type callerClaimsKey struct{}

// CallerClaims represents the authenticated caller stored during token verification.
type CallerClaims struct {
	Claims    *Claims
	Token     string
	DevBypass bool
}

// BindCallerClaims stores caller claims inside the context for downstream consumers.
func BindCallerClaims(ctx context.Context, claims CallerClaims) context.Context {
	return context.WithValue(ctx, callerClaimsKey{}, claims)
}

// CallerClaimsFromContext retrieves caller claims previously stored in the context.
func CallerClaimsFromContext(ctx context.Context) (CallerClaims, bool) {
	if ctx == nil {
		return CallerClaims{}, false
	}
	value := ctx.Value(callerClaimsKey{})
	if value == nil {
		return CallerClaims{}, false
	}
	claims, ok := value.(CallerClaims)
	return claims, ok
}

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	caller, ok := CallerClaimsFromContext(ctx)
	if !ok || caller.Claims == nil || caller.Claims.Subject == "" {
		return "", false
	}
	return caller.Claims.Subject, true
}
