package role

import (
	"context"
	"time"

	"github.com/jrsteele09/helpdesk-portal/internal/metrics"
	"github.com/rs/zerolog/log"
)

// IdentityProvider is the part of the identity client the resolver needs.
type IdentityProvider interface {
	IsAuthenticated(sessionID string) bool
	AccessToken(ctx context.Context, sessionID string) (string, bool)
}

// Directory lists the group ids the token's identity is a member of.
type Directory interface {
	MemberOf(ctx context.Context, accessToken string) ([]string, error)
}

// Resolver turns a browser session into a Role.
type Resolver struct {
	idp     IdentityProvider
	dir     Directory
	groups  Groups
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewResolver creates a resolver. A zero timeout leaves the directory query
// bounded only by the caller's context; m may be nil.
func NewResolver(idp IdentityProvider, dir Directory, groups Groups, timeout time.Duration, m *metrics.Metrics) *Resolver {
	return &Resolver{
		idp:     idp,
		dir:     dir,
		groups:  groups,
		timeout: timeout,
		metrics: m,
	}
}

// Resolve computes the role for sessionID. It never fails: every technical
// problem degrades to None and is logged. There is no retry.
func (r *Resolver) Resolve(ctx context.Context, sessionID string) (resolved Role) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("[role Resolve] recovered, treating session as logged out")
			resolved = None
		}
		r.record(resolved)
	}()

	if sessionID == "" || !r.idp.IsAuthenticated(sessionID) {
		return None
	}

	token, ok := r.idp.AccessToken(ctx, sessionID)
	if !ok || token == "" {
		log.Debug().Msg("[role Resolve] silent token reacquisition failed")
		return None
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	memberships, err := r.dir.MemberOf(ctx, token)
	if err != nil {
		log.Err(err).Msg("[role Resolve] directory query failed")
		return None
	}

	return FromGroups(memberships, r.groups)
}

func (r *Resolver) record(resolved Role) {
	if r.metrics == nil {
		return
	}
	r.metrics.RoleResolutionsTotal.WithLabelValues(resolved.String()).Inc()
}
