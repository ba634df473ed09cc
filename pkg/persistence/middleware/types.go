package middleware

import "github.com/aretw0/sherpa/pkg/ports"

// Middleware wraps a StateStore to add behavior.
type Middleware func(ports.StateStore) ports.StateStore
