package constants

import "time"

// Application identity.
const (
	AppName     = "planline"
	Software    = "https://github.com/planline/planline"
	Description = "Project management backend with realtime collaboration"
)

// Database retry behavior.
const (
	MaxDBRetries = 3
	DBRetryDelay = 1 * time.Second
)

// Shutdown and background work sizing.
const (
	ShutdownTimeout  = 30 * time.Second
	WorkerCount      = 8
	WorkerQueueSize  = 1024
)
