package secrets

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"sekret.org/internal/audit"
	"sekret.org/internal/identity"
	"sekret.org/internal/obs"
)

const (
	rotationLength   = 20
	rotationAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*"
)

// Rotator replaces a secret's value with a freshly generated one through the
// normal update path.
type Rotator struct {
	svc     Service
	emitter audit.Emitter
}

// NewRotator builds a rotator over the (audited) service.
func NewRotator(svc Service, emitter audit.Emitter) *Rotator {
	return &Rotator{svc: svc, emitter: emitter}
}

// Rotate generates a new value and applies it via Update. Rotation is a
// distinct action from a manual edit: a ROTATE event goes out in addition to
// the UPDATE event the update path already emits.
func (r *Rotator) Rotate(ctx context.Context, ident identity.Identity, secretID string) (string, error) {
	value, err := GenerateValue()
	if err != nil {
		return "", err
	}
	if _, err := r.svc.Update(ctx, ident, secretID, UpdateInput{Value: &value}); err != nil {
		return "", err
	}
	obs.ObserveSecretOp(string(audit.ActionRotate))
	if r.emitter != nil {
		r.emitter.Notify(ctx, audit.NewEvent(ident.UserID, ident.Email, audit.ActionRotate, secretID))
	}
	return value, nil
}

// GenerateValue draws a fixed-length value uniformly from the rotation
// alphabet using a cryptographically secure source.
func GenerateValue() (string, error) {
	out := make([]byte, rotationLength)
	max := big.NewInt(int64(len(rotationAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate rotation value: %w", err)
		}
		out[i] = rotationAlphabet[n.Int64()]
	}
	return string(out), nil
}
