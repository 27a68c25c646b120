package engine

import "context"

// =============================================================================
// TENANT SCOPE - Request-scoped company filter
// =============================================================================

// Tenant is the company scope of one logical operation. It travels on the
// operation's context.Context, so two concurrent requests each see only their
// own scope.
//
// Bypass is reserved for superusers operating across companies: tenant-scoped
// queries then omit the company filter entirely instead of filtering by an
// empty company id.
type Tenant struct {
	CompanyID string
	Bypass    bool
}

// Superuser is the cross-company scope used by scheduled jobs.
var Superuser = Tenant{Bypass: true}

// Filter returns the company id to filter by, or ok=false when no filter
// applies.
func (t Tenant) Filter() (companyID string, ok bool) {
	if t.Bypass {
		return "", false
	}
	return t.CompanyID, true
}

// Allows reports whether a row owned by companyID is visible in this scope.
func (t Tenant) Allows(companyID string) bool {
	return t.Bypass || t.CompanyID == companyID
}

func (t Tenant) valid() bool { return t.Bypass || t.CompanyID != "" }

type tenantKey struct{}

// WithTenant returns a child context carrying t. The scope ends with the
// context: nothing outlives the request that set it.
func WithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, tenantKey{}, t)
}

// TenantFrom returns the scope carried by ctx. A missing or empty scope fails
// closed with ErrNoTenant.
func TenantFrom(ctx context.Context) (Tenant, error) {
	t, ok := ctx.Value(tenantKey{}).(Tenant)
	if !ok || !t.valid() {
		return Tenant{}, ErrNoTenant
	}
	return t, nil
}

// RunAsTenant runs fn with t attached to its context. Jobs triggered outside
// a request (CLI, scheduler, message consumers) use it so the scope is
// acquired and released around exactly one operation.
func RunAsTenant(ctx context.Context, t Tenant, fn func(ctx context.Context) error) error {
	if !t.valid() {
		return ErrNoTenant
	}
	return fn(WithTenant(ctx, t))
}
