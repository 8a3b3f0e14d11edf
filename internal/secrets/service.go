package secrets

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"sekret.org/internal/crypto"
	"sekret.org/internal/identity"
	"sekret.org/internal/ids"
)

// InMemory implements Service with in-process concurrency safety. Used in
// tests and single-node development; the Postgres store is the durable twin.
type InMemory struct {
	envelope *crypto.Envelope

	mu       sync.Mutex
	secrets  map[string]*Secret
	versions map[string][]SecretVersion
}

var _ Service = (*InMemory)(nil)

// NewInMemory creates an empty store encrypting under the given envelope.
func NewInMemory(envelope *crypto.Envelope) *InMemory {
	return &InMemory{
		envelope: envelope,
		secrets:  make(map[string]*Secret),
		versions: make(map[string][]SecretVersion),
	}
}

func (s *InMemory) Create(ctx context.Context, ident identity.Identity, in CreateInput) (Secret, error) {
	if !ident.CanCreate() {
		return Secret{}, fmt.Errorf("%w: role %q cannot create secrets", ErrForbidden, ident.Role)
	}
	if strings.TrimSpace(in.Name) == "" {
		return Secret{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	ciphertext, err := s.envelope.Seal([]byte(in.Value))
	if err != nil {
		return Secret{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	sec := &Secret{
		ID:          ids.New(),
		Name:        strings.TrimSpace(in.Name),
		Type:        strings.TrimSpace(in.Type),
		Description: in.Description,
		Tags:        NormalizeTags(in.Tags),
		OwnerID:     ident.UserID,
		OwnerEmail:  ident.Email,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
		Ciphertext:  ciphertext,
	}
	s.secrets[sec.ID] = sec
	return copyMeta(sec), nil
}

func (s *InMemory) List(ctx context.Context, ident identity.Identity) ([]Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Secret, 0)
	for _, sec := range s.secrets {
		if sec.DeletedAt != nil {
			continue
		}
		if !ident.IsAdmin() && sec.OwnerID != ident.UserID {
			continue
		}
		result = append(result, copyMeta(sec))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (s *InMemory) Get(ctx context.Context, ident identity.Identity, secretID string, reveal bool) (Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, err := s.visible(ident, secretID)
	if err != nil {
		return Secret{}, err
	}
	out := copyMeta(sec)
	if reveal {
		plaintext, err := s.envelope.Open(sec.Ciphertext)
		if err != nil {
			return Secret{}, err
		}
		out.Value = string(plaintext)
	} else {
		out.Value = MaskedValue
	}
	return out, nil
}

func (s *InMemory) Update(ctx context.Context, ident identity.Identity, secretID string, upd UpdateInput) (int, error) {
	if upd.Value != nil && *upd.Value == "" {
		return 0, fmt.Errorf("%w: value must not be empty", ErrInvalidInput)
	}
	var ciphertext []byte
	if upd.Value != nil {
		var err error
		ciphertext, err = s.envelope.Seal([]byte(*upd.Value))
		if err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sec, err := s.visible(ident, secretID)
	if err != nil {
		return 0, err
	}
	if upd.Value != nil {
		// Archive the pre-update ciphertext at the current version, then bump.
		s.versions[sec.ID] = append(s.versions[sec.ID], SecretVersion{
			ID:             ids.New(),
			SecretID:       sec.ID,
			Version:        sec.Version,
			Ciphertext:     sec.Ciphertext,
			UpdatedBy:      ident.UserID,
			UpdatedByEmail: ident.Email,
			CreatedAt:      time.Now().UTC(),
		})
		sec.Ciphertext = ciphertext
		sec.Version++
	}
	if upd.Description != nil {
		sec.Description = *upd.Description
	}
	if upd.Tags != nil {
		sec.Tags = NormalizeTags(upd.Tags)
	}
	sec.UpdatedAt = time.Now().UTC()
	return sec.Version, nil
}

func (s *InMemory) Delete(ctx context.Context, ident identity.Identity, secretID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, err := s.visible(ident, secretID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	sec.DeletedAt = &now
	return nil
}

func (s *InMemory) ListVersions(ctx context.Context, ident identity.Identity, secretID string) ([]SecretVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, err := s.visible(ident, secretID)
	if err != nil {
		return nil, err
	}
	stored := s.versions[sec.ID]
	result := make([]SecretVersion, len(stored))
	copy(result, stored)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Version > result[j].Version
	})
	return result, nil
}

// visible resolves a live secret the caller may act on. Absent, tombstoned
// and foreign-owned all collapse into ErrNotFound.
func (s *InMemory) visible(ident identity.Identity, secretID string) (*Secret, error) {
	sec, ok := s.secrets[secretID]
	if !ok || sec.DeletedAt != nil {
		return nil, ErrNotFound
	}
	if !ident.IsAdmin() && sec.OwnerID != ident.UserID {
		return nil, ErrNotFound
	}
	return sec, nil
}

func copyMeta(sec *Secret) Secret {
	out := *sec
	out.Tags = append([]string(nil), sec.Tags...)
	out.Ciphertext = nil
	out.Value = ""
	return out
}
