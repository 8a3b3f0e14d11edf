package secrets

import (
	"context"

	"sekret.org/internal/audit"
	"sekret.org/internal/identity"
	"sekret.org/internal/obs"
)

// audited decorates a Service with audit emission so both the in-memory and
// Postgres implementations share one notification path. Events go out only
// after the operation succeeds; delivery failures never surface here.
type audited struct {
	next    Service
	emitter audit.Emitter
}

// WithAudit wraps svc so every mutating or viewing operation emits an audit
// event. Listing is intentionally not audited.
func WithAudit(svc Service, emitter audit.Emitter) Service {
	return &audited{next: svc, emitter: emitter}
}

func (a *audited) Create(ctx context.Context, ident identity.Identity, in CreateInput) (Secret, error) {
	sec, err := a.next.Create(ctx, ident, in)
	if err != nil {
		return Secret{}, err
	}
	a.emit(ctx, ident, audit.ActionCreate, sec.ID)
	return sec, nil
}

func (a *audited) List(ctx context.Context, ident identity.Identity) ([]Secret, error) {
	return a.next.List(ctx, ident)
}

func (a *audited) Get(ctx context.Context, ident identity.Identity, secretID string, reveal bool) (Secret, error) {
	sec, err := a.next.Get(ctx, ident, secretID, reveal)
	if err != nil {
		return Secret{}, err
	}
	// Viewing is audited even when the value stays masked.
	a.emit(ctx, ident, audit.ActionView, sec.ID)
	return sec, nil
}

func (a *audited) Update(ctx context.Context, ident identity.Identity, secretID string, upd UpdateInput) (int, error) {
	version, err := a.next.Update(ctx, ident, secretID, upd)
	if err != nil {
		return 0, err
	}
	a.emit(ctx, ident, audit.ActionUpdate, secretID)
	return version, nil
}

func (a *audited) Delete(ctx context.Context, ident identity.Identity, secretID string) error {
	if err := a.next.Delete(ctx, ident, secretID); err != nil {
		return err
	}
	a.emit(ctx, ident, audit.ActionDelete, secretID)
	return nil
}

func (a *audited) ListVersions(ctx context.Context, ident identity.Identity, secretID string) ([]SecretVersion, error) {
	return a.next.ListVersions(ctx, ident, secretID)
}

func (a *audited) emit(ctx context.Context, ident identity.Identity, action audit.Action, secretID string) {
	obs.ObserveSecretOp(string(action))
	if a.emitter == nil {
		return
	}
	a.emitter.Notify(ctx, audit.NewEvent(ident.UserID, ident.Email, action, secretID))
}
