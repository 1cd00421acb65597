package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// defaultSpec fires Fridays at 5 PM in the configured timezone.
const defaultSpec = "0 17 * * 5"

const reminderText = "Friendly reminder! 🛒 Please add any items you need to the shopping list by 5 PM today. Mention me (@ShopAgent) with your request (e.g., `@ShopAgent add https://...` or `@ShopAgent find detergent`)."

// Notifier posts the reminder to the team channel.
type Notifier interface {
	PostReminder(text string)
}

// Scheduler runs the weekly shopping list reminder.
type Scheduler struct {
	cron     *cron.Cron
	notifier Notifier
	spec     string
	logger   *zap.Logger
}

// New builds the scheduler. spec is a standard cron expression (empty uses
// the Friday 5 PM default); timezone names an IANA location, empty means UTC.
func New(notifier Notifier, spec, timezone string, logger *zap.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = defaultSpec
	}

	loc := time.UTC
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("loading scheduler timezone %q: %w", timezone, err)
		}
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		notifier: notifier,
		spec:     spec,
		logger:   logger,
	}
	if _, err := s.cron.AddFunc(spec, s.remind); err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("reminder scheduler started", zap.String("spec", s.spec))
}

// Stop halts the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("reminder scheduler stopped")
}

func (s *Scheduler) remind() {
	s.logger.Info("sending weekly reminder")
	s.notifier.PostReminder(reminderText)
}
