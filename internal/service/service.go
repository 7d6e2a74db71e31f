// Package service holds the account use cases: user lifecycle, credential
// checks and session issuance. Storage, hashing, ids and tokens are
// injected through Deps.
package service

import (
	"sync"
	"time"

	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/domain/user"
)

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(hash, plain string) error
}

type IDGenerator interface {
	NewID(at time.Time) (string, error)
}

type TokenIssuer interface {
	GenerateAccessToken(userID, email, role string) (string, error)
	GenerateRefreshToken(userID, email, role string) (raw string, jti string, expiresAt time.Time, err error)
	VerifyRefreshToken(raw string) (*auth.Claims, error)
	HashRefreshToken(raw string) string
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// Metrics is satisfied by observability.Prom. Results are "ok" or a kind name.
type Metrics interface {
	ObserveUserOp(op, result string)
	ObserveLogin(result string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveUserOp(string, string) {}
func (noopMetrics) ObserveLogin(string)          {}

type Deps struct {
	Users    user.Repository
	Sessions user.SessionStore
	Hasher   PasswordHasher
	IDs      IDGenerator
	Tokens   TokenIssuer
	Clock    Clock
	Metrics  Metrics
}

type UserService struct {
	users    user.Repository
	sessions user.SessionStore
	hasher   PasswordHasher
	ids      IDGenerator
	tokens   TokenIssuer
	clock    Clock
	metrics  Metrics

	// dummyHash is compared against when a login email is unknown so both
	// paths pay for one hash comparison.
	dummyOnce sync.Once
	dummyHash string
}

func NewUserService(d Deps) *UserService {
	if d.Clock == nil {
		d.Clock = realClock{}
	}
	if d.Metrics == nil {
		d.Metrics = noopMetrics{}
	}

	return &UserService{
		users:    d.Users,
		sessions: d.Sessions,
		hasher:   d.Hasher,
		ids:      d.IDs,
		tokens:   d.Tokens,
		clock:    d.Clock,
		metrics:  d.Metrics,
	}
}

func (s *UserService) burnCompare(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("accounthub-unknown-user")
	})

	if s.dummyHash != "" {
		_ = s.hasher.Compare(s.dummyHash, password)
	}
}

func resultOf(err error) string {
	if err == nil {
		return "ok"
	}
	return user.KindOf(err).String()
}
