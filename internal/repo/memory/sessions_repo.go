package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
)

var (
	ErrTxClosed  = errors.New("tx is closed")
	ErrForeignTx = errors.New("tx was not started by this store")
)

// SessionsRepo is an in-process refresh token store. Only one transaction
// runs at a time, which gives the same guarantee as a row lock.
type SessionsRepo struct {
	txMu sync.Mutex

	mu   sync.RWMutex
	rows map[string]user.RefreshToken
	now  func() time.Time
}

func NewSessionsRepo() *SessionsRepo {
	return &SessionsRepo{
		rows: make(map[string]user.RefreshToken),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

type sessionTx struct {
	repo   *SessionsRepo
	staged map[string]user.RefreshToken
	closed bool
}

func (r *SessionsRepo) BeginTx(ctx context.Context) (user.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.txMu.Lock()

	return &sessionTx{
		repo:   r,
		staged: make(map[string]user.RefreshToken),
	}, nil
}

func (tx *sessionTx) Commit(_ context.Context) error {
	if tx.closed {
		return ErrTxClosed
	}

	tx.repo.mu.Lock()
	for id, row := range tx.staged {
		tx.repo.rows[id] = row
	}
	tx.repo.mu.Unlock()

	tx.closed = true
	tx.repo.txMu.Unlock()

	return nil
}

func (tx *sessionTx) Rollback(_ context.Context) error {
	if tx.closed {
		return ErrTxClosed
	}

	tx.closed = true
	tx.repo.txMu.Unlock()

	return nil
}

func (r *SessionsRepo) Create(_ context.Context, tx user.Tx, row user.RefreshToken) error {
	t, err := r.own(tx)
	if err != nil {
		return err
	}

	t.staged[row.ID] = row

	return nil
}

func (r *SessionsRepo) GetForUpdate(_ context.Context, tx user.Tx, id string) (user.RefreshToken, error) {
	t, err := r.own(tx)
	if err != nil {
		return user.RefreshToken{}, err
	}

	row, ok := t.lookup(id)
	if !ok {
		return user.RefreshToken{}, user.ErrRefreshTokenNotFound
	}

	return row, nil
}

func (r *SessionsRepo) Revoke(_ context.Context, tx user.Tx, id string, replacedBy *string) error {
	t, err := r.own(tx)
	if err != nil {
		return err
	}

	row, ok := t.lookup(id)
	if !ok {
		return nil
	}

	now := r.now()
	row.RevokedAt = &now
	row.ReplacedBy = replacedBy
	t.staged[id] = row

	return nil
}

func (r *SessionsRepo) RevokeAllForUser(_ context.Context, tx user.Tx, userID string) error {
	t, err := r.own(tx)
	if err != nil {
		return err
	}

	now := r.now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, row := range r.rows {
		if row.UserID != userID || row.RevokedAt != nil {
			continue
		}
		row.RevokedAt = &now
		t.staged[id] = row
	}

	return nil
}

func (r *SessionsRepo) own(tx user.Tx) (*sessionTx, error) {
	t, ok := tx.(*sessionTx)
	if !ok || t.repo != r {
		return nil, ErrForeignTx
	}
	if t.closed {
		return nil, ErrTxClosed
	}
	return t, nil
}

func (tx *sessionTx) lookup(id string) (user.RefreshToken, bool) {
	if row, ok := tx.staged[id]; ok {
		return row, true
	}

	tx.repo.mu.RLock()
	defer tx.repo.mu.RUnlock()

	row, ok := tx.repo.rows[id]

	return row, ok
}
