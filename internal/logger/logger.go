package logger

import (
	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// New builds the process logger: console output in development, JSON
// everywhere else.
func New(environment string) (*zap.Logger, error) {
	if environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func Owner(id uuid.UUID) zap.Field {
	return zap.String("owner_id", id.String())
}
