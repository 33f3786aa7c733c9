package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/frondo/internal/logging"
	"github.com/JonMunkholm/frondo/internal/session"
)

type ctxKey int

const sessionKey ctxKey = iota

// withSessionContext stores the caller's session and its ID for logging.
func withSessionContext(ctx context.Context, sess *session.Session) context.Context {
	ctx = context.WithValue(ctx, sessionKey, sess)
	return logging.ContextWithSessionID(ctx, sess.ID)
}

// sessionFromContext returns the session resolved by withSession.
func sessionFromContext(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionKey).(*session.Session)
	return sess
}

func logFromRequest(r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context())
}
