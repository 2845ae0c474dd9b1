// Package jobs runs the club's periodic maintenance: match reminders and
// the stale-booking sweep. All mutations go through the booking
// coordinator, so jobs obey the same serialization as every other caller.
package jobs

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"github.com/padelclub/padelclub/internal/booking"
)

const (
	// staleAfter is how long past its slot an unplayed match may linger
	// before the sweep cancels it.
	staleAfter = 48 * time.Hour

	reminderInterval = time.Hour
	sweepInterval    = 24 * time.Hour
)

// Scheduler owns the periodic jobs.
type Scheduler struct {
	coord *booking.Coordinator
	sched gocron.Scheduler
	loc   *time.Location
	log   *logrus.Entry
}

// New creates the scheduler. Jobs do not run until Start.
func New(coord *booking.Coordinator, loc *time.Location, log *logrus.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		coord: coord,
		sched: sched,
		loc:   loc,
		log:   log.WithField("component", "jobs"),
	}, nil
}

// Start registers and starts the jobs.
func (s *Scheduler) Start() error {
	if _, err := s.sched.NewJob(
		gocron.DurationJob(reminderInterval),
		gocron.NewTask(s.remind),
	); err != nil {
		return err
	}
	if _, err := s.sched.NewJob(
		gocron.DurationJob(sweepInterval),
		gocron.NewTask(s.sweep),
	); err != nil {
		return err
	}

	s.sched.Start()
	s.log.Info("maintenance jobs started")
	return nil
}

// Stop shuts the scheduler down and waits for running jobs.
func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}

// remind flags matches starting in the next hour-after-next window; running
// hourly, every match lands in exactly one window.
func (s *Scheduler) remind() {
	now := time.Now().In(s.loc)
	s.coord.Send(booking.RemindUpcoming{
		From: now.Add(reminderInterval),
		To:   now.Add(2 * reminderInterval),
	})
}

func (s *Scheduler) sweep() {
	now := time.Now().In(s.loc)
	s.log.Info("sweeping stale matches")
	s.coord.Send(booking.ExpireStale{Before: now.Add(-staleAfter)})
}
