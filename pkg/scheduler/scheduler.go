// Package scheduler runs the engine's recurring maintenance work,
// independent of request traffic.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler drives registered jobs on cron schedules. Runs of the same job
// never overlap; a slow run just skips the next tick.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger
}

// New creates a stopped scheduler.
func New(logger zerolog.Logger) *Scheduler {
	logger = logger.With().Str("component", "scheduler").Logger()
	cronLogger := &zerologAdapter{logger: logger}

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cron.NewParser(
				cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
			)),
			cron.WithChain(
				cron.SkipIfStillRunning(cronLogger),
				cron.Recover(cronLogger),
			),
		),
		logger: logger,
	}
}

// Add registers a job under a cron expression (descriptors like
// "@every 5m" included).
func (s *Scheduler) Add(name, spec string, run func()) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Debug().Str("job", name).Msg("Running scheduled job")
		run()
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}

	s.logger.Info().Str("job", name).Str("schedule", spec).Msg("Job scheduled")
	return nil
}

// Start begins running schedules in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// zerologAdapter bridges robfig/cron's logger to zerolog.
type zerologAdapter struct {
	logger zerolog.Logger
}

func (a *zerologAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug().Fields(fieldMap(keysAndValues)).Msg(msg)
}

func (a *zerologAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Error().Err(err).Fields(fieldMap(keysAndValues)).Msg(msg)
}

func fieldMap(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
