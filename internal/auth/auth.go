// Package auth manages learner identity: access-code login against
// the usuarios table, a locally persisted session blob with a 24-hour
// freshness window, and per-module access gates.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tsp-sistema/client/internal/models"
	"github.com/tsp-sistema/client/internal/rest"
	"github.com/tsp-sistema/client/internal/storage"
)

const (
	sessionKey      = "current_user"
	sessionLifetime = 24 * time.Hour
	minCodeLength   = 4
)

// Session is the persisted identity blob.
type Session struct {
	UserID     int64  `json:"id"`
	AccessCode string `json:"codigo_acceso"`
	FullName   string `json:"nombre"`
	Grade      int    `json:"grado"`
	Cycle      int    `json:"ciclo"`
	SavedAt    int64  `json:"timestamp"` // unix milliseconds
}

// Manager owns the login lifecycle. Construct on login, destroy on
// logout; no ambient globals.
type Manager struct {
	rest  *rest.Client
	store storage.Store
	log   *zap.Logger
	now   func() time.Time
}

func NewManager(client *rest.Client, store storage.Store, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{rest: client, store: store, log: log, now: time.Now}
}

// LoginWithCode validates and normalizes the access code, looks the
// learner up, and persists the session blob on success.
func (m *Manager) LoginWithCode(ctx context.Context, code string) (*models.User, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < minCodeLength {
		return nil, fmt.Errorf("access code must have at least %d characters", minCodeLength)
	}

	var user models.User
	found, err := m.rest.From("usuarios").
		Select("*").
		Eq("codigo_acceso", code).
		Eq("estado", string(models.UserActive)).
		Single().
		ExecuteInto(ctx, &user)
	if err != nil {
		return nil, fmt.Errorf("login lookup: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("access code not valid or user inactive")
	}

	m.saveSession(&user)
	m.log.Info("login successful", zap.String("user", user.FullName), zap.Int("grade", user.Grade))
	return &user, nil
}

// CurrentUser returns the logged-in learner, re-verified against the
// backend. Missing, malformed, or stale session blobs yield
// (nil, nil); only network-level failures surface as errors.
func (m *Manager) CurrentUser(ctx context.Context) (*models.User, error) {
	var sess Session
	if !storage.GetJSON(m.store, sessionKey, &sess) || sess.UserID == 0 {
		return nil, nil
	}

	if m.now().Sub(time.UnixMilli(sess.SavedAt)) > sessionLifetime {
		m.log.Debug("stored session expired", zap.Int64("user_id", sess.UserID))
		m.Logout()
		return nil, nil
	}

	var user models.User
	found, err := m.rest.From("usuarios").
		Select("*").
		Eq("id", sess.UserID).
		Eq("estado", string(models.UserActive)).
		Single().
		ExecuteInto(ctx, &user)
	if err != nil {
		return nil, fmt.Errorf("verify current user: %w", err)
	}
	if !found {
		// Deactivated or deleted since login.
		m.Logout()
		return nil, nil
	}
	return &user, nil
}

// Logout discards the persisted session.
func (m *Manager) Logout() {
	if err := m.store.Remove(sessionKey); err != nil {
		m.log.Warn("could not clear session", zap.Error(err))
	}
}

// CanAccessModule applies the per-module grade gates.
func (m *Manager) CanAccessModule(ctx context.Context, module string) (bool, error) {
	user, err := m.CurrentUser(ctx)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, nil
	}

	switch module {
	case "MLC":
		return true, nil
	case "MDC":
		return user.Grade >= 3, nil
	case "MED":
		return user.Grade >= 4, nil
	default:
		return false, nil
	}
}

// UpdateLastActivity touches the learner's fecha_actualizacion.
// Failures are swallowed with a warning; this is bookkeeping, never
// worth interrupting the session for.
func (m *Manager) UpdateLastActivity(ctx context.Context) {
	var sess Session
	if !storage.GetJSON(m.store, sessionKey, &sess) || sess.UserID == 0 {
		return
	}

	_, err := m.rest.From("usuarios").
		Eq("id", sess.UserID).
		Update(ctx, map[string]any{
			"fecha_actualizacion": m.now().UTC().Format(time.RFC3339),
		})
	if err != nil {
		m.log.Warn("could not update last activity", zap.Error(err))
	}
}

// StartActivityPing touches last activity on the given interval until
// ctx is cancelled. Callers cancel on page-hide/teardown so no stale
// background work survives the session.
func (m *Manager) StartActivityPing(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.UpdateLastActivity(ctx)
			}
		}
	}()
}

func (m *Manager) saveSession(user *models.User) {
	sess := Session{
		UserID:     user.ID,
		AccessCode: user.AccessCode,
		FullName:   user.FullName,
		Grade:      user.Grade,
		Cycle:      user.Cycle,
		SavedAt:    m.now().UnixMilli(),
	}
	if err := storage.SetJSON(m.store, sessionKey, sess); err != nil {
		m.log.Warn("could not persist session", zap.Error(err))
	}
}
