package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hashdrive/hashdrive/internal/faults"
)

// EnableShare creates (or re-enables) a share link on a record and commits.
// An optional password is stored only as a bcrypt hash. expiresAt of zero
// means the link never expires.
func (s *Store) EnableShare(ctx context.Context, id, permission, password string, expiresAt time.Time) (*Share, error) {
	if permission != PermissionViewer && permission != PermissionEditor {
		return nil, faults.New(faults.Validation, "", fmt.Sprintf("permission must be %q or %q", PermissionViewer, PermissionEditor))
	}

	var passwordHash string
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash share password: %w", err)
		}
		passwordHash = string(hash)
	}

	s.mu.Lock()
	rec := s.findLocked(id)
	if rec == nil {
		s.mu.Unlock()
		return nil, notFound(id)
	}

	if rec.Share == nil {
		rec.Share = &Share{
			ShareID:   uuid.New().String(),
			CreatedAt: nowMs(),
			CreatedBy: s.reg.OwnerID,
		}
	}
	rec.Share.Enabled = true
	rec.Share.Permission = permission
	rec.Share.PasswordHash = passwordHash
	if !expiresAt.IsZero() {
		rec.Share.ExpiresAt = expiresAt.UnixMilli()
	} else {
		rec.Share.ExpiresAt = 0
	}
	rec.LogActivity("shared", s.reg.OwnerID, permission)
	share := *rec.Share
	s.cacheRecordLocked(rec)
	s.mu.Unlock()

	if err := s.Commit(ctx); err != nil {
		return nil, err
	}
	return &share, nil
}

// DisableShare turns a share link off without discarding its identity, so
// re-enabling restores the same share id.
func (s *Store) DisableShare(ctx context.Context, id string) error {
	s.mu.Lock()
	rec := s.findLocked(id)
	if rec == nil {
		s.mu.Unlock()
		return notFound(id)
	}
	if rec.Share == nil {
		s.mu.Unlock()
		return nil
	}
	rec.Share.Enabled = false
	rec.LogActivity("unshared", s.reg.OwnerID, "")
	s.cacheRecordLocked(rec)
	s.mu.Unlock()

	return s.Commit(ctx)
}

// SharedRecord resolves a share id to its record, enforcing enablement and
// expiry.
func (s *Store) SharedRecord(shareID string) (*FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.reg.Files {
		if f.Share == nil || f.Share.ShareID != shareID {
			continue
		}
		if !f.Share.Enabled {
			return nil, faults.New(faults.Validation, "", "share link is disabled")
		}
		if f.Share.ExpiresAt > 0 && f.Share.ExpiresAt < nowMs() {
			return nil, faults.New(faults.Validation, "", "share link has expired")
		}
		return f, nil
	}
	return nil, faults.New(faults.Validation, "not_found", fmt.Sprintf("no share with id %s", shareID))
}

// VerifySharePassword checks a password attempt against a share link.
// Links without a password accept any attempt.
func (s *Store) VerifySharePassword(shareID, password string) (bool, error) {
	rec, err := s.SharedRecord(shareID)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	hash := rec.Share.PasswordHash
	s.mu.RUnlock()

	if hash == "" {
		return true, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

// RecordShareAccess bumps a share link's access counters and commits in
// the background; viewers never wait on the bookkeeping.
func (s *Store) RecordShareAccess(shareID string) {
	s.mu.Lock()
	for _, f := range s.reg.Files {
		if f.Share != nil && f.Share.ShareID == shareID {
			f.Share.AccessCount++
			f.Share.LastAccessedAt = nowMs()
			break
		}
	}
	s.mu.Unlock()

	s.commitInBackground("share_access")
}
