package memory

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Sweepable is the slice of Manager the janitor needs.
type Sweepable interface {
	Sessions() []string
	Prune(ctx context.Context, sessionID string) (int, error)
}

// Janitor sweeps expired memory on a cron schedule.
type Janitor struct {
	manager  Sweepable
	schedule string
	cron     *cron.Cron
	entryID  cron.EntryID
}

// NewJanitor builds a janitor for the given manager. The schedule uses the
// standard five-field cron syntax or a descriptor like "@hourly".
func NewJanitor(manager Sweepable, schedule string) *Janitor {
	return &Janitor{
		manager:  manager,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start registers the sweep and starts the scheduler.
func (j *Janitor) Start() error {
	id, err := j.cron.AddFunc(j.schedule, j.sweep)
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", j.schedule, err)
	}
	j.entryID = id
	j.cron.Start()

	log.Info().Str("schedule", j.schedule).Msg("Memory janitor started")
	return nil
}

// Stop halts the scheduler and waits for an in-flight sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("Memory janitor stopped")
}

// Sweep runs one pass immediately, outside the schedule.
func (j *Janitor) Sweep() {
	j.sweep()
}

func (j *Janitor) sweep() {
	ctx := context.Background()
	removed := 0

	for _, id := range j.manager.Sessions() {
		n, err := j.manager.Prune(ctx, id)
		if err != nil {
			log.Warn().Str("session_id", id).Err(err).Msg("Memory sweep failed for session")
			continue
		}
		removed += n
	}

	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("Memory sweep completed")
	}
}
