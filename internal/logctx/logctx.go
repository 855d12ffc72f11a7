package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates records with stream and relay attributes carried by the
// context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("sess",
			slog.String("id", sd.SessionID),
			slog.String("endpoint", sd.Endpoint),
			slog.String("url", sd.URL),
		))
	}

	if rd, ok := ctx.Value(relayDataKey{}).(*RelayData); ok {
		r.AddAttrs(slog.Group("relay",
			slog.String("id", rd.RelayID),
			slog.String("topic", rd.Topic),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

// Wrap returns a logger whose handler is decorated by Handler. Loggers that
// are already decorated are returned unchanged.
func Wrap(l *slog.Logger) *slog.Logger {
	if _, ok := l.Handler().(Handler); ok {
		return l
	}
	return slog.New(Handler{Handler: l.Handler()})
}

type sessionDataKey struct{}

type SessionData struct {
	SessionID string
	Endpoint  string
	URL       string
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}

type relayDataKey struct{}

type RelayData struct {
	RelayID string
	Topic   string
}

func WithRelayData(ctx context.Context, data *RelayData) context.Context {
	return context.WithValue(ctx, relayDataKey{}, data)
}
