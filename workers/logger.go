package workers

import "rc_harvester/models"

// LogFunc records a line in the run journal (stage_logs).
type LogFunc func(level models.LogLevel, stage models.Stage, message string)

// NoOpLogger does nothing (default)
var NoOpLogger LogFunc = func(level models.LogLevel, stage models.Stage, message string) {}
