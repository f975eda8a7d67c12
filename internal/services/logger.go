package services

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ServiceIdentifier interface {
	ID() string
}

// ServiceLogger is the global zerolog logger tagged with the component that
// owns it. Info, Warn, Error and Debug come from the embedded logger.
type ServiceLogger struct {
	zerolog.Logger
}

func NewServiceLogger(svc ServiceIdentifier) *ServiceLogger {
	return tagged("service", svc.ID())
}

// NewDexLogger tags every line with the adapter id instead of a service id.
func NewDexLogger(dexID string) *ServiceLogger {
	return tagged("dex", dexID)
}

func tagged(key, value string) *ServiceLogger {
	return &ServiceLogger{Logger: log.With().Str(key, value).Logger()}
}
