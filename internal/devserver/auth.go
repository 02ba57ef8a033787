package devserver

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/matheus3301/chatline/internal/identity"
)

type contextKey string

const userContextKey contextKey = "userID"

func withUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey, userID)
}

// UserID returns the authenticated caller, or "" outside the auth middleware.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userContextKey).(string)
	return v
}

// authenticate verifies the bearer token, checks that its subject is a known user
// and records the user's activity.
func (s *Service) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := s.verify(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), uid)))
	})
}

func (s *Service) verify(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, err := identity.ParseBearer(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return "", false
	}
	sub, err := s.issuer.Verify(token)
	if err != nil {
		s.logger.Debug("token rejected", zap.Error(err))
		writeError(w, http.StatusUnauthorized, "invalid token")
		return "", false
	}

	ctx := r.Context()
	user, err := s.db.GetUser(ctx, sub)
	if err != nil {
		s.logger.Error("lookup user", zap.String("user_id", sub), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return "", false
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unknown user")
		return "", false
	}
	if err := s.db.TouchUser(ctx, sub, s.now().UnixMilli()); err != nil {
		s.logger.Warn("record activity", zap.String("user_id", sub), zap.Error(err))
	}
	return sub, true
}
