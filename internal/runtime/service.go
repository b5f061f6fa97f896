// Package runtime ties the session controller, the event broadcaster and a
// workflow driver together into the service the HTTP layer talks to.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nvalerio/portalsync/internal/credstore"
	"github.com/nvalerio/portalsync/internal/driver"
	"github.com/nvalerio/portalsync/internal/observability"
	"github.com/nvalerio/portalsync/internal/session"
	"github.com/nvalerio/portalsync/internal/stream"
)

// ErrValidation marks request errors that map to HTTP 400.
var ErrValidation = errors.New("invalid request")

type Config struct {
	PortalURL  string
	Headless   bool
	RunTimeout time.Duration
}

// StartRequest is the start operation's input. Secret may be empty when the
// account has saved credentials.
type StartRequest struct {
	Account         string `json:"account"`
	Secret          string `json:"secret"`
	ProjectRef      string `json:"project_ref"`
	SaveCredentials bool   `json:"save_credentials"`
}

type StartOutcome struct {
	Started        bool   `json:"started"`
	AlreadyRunning bool   `json:"already_running"`
	RunID          string `json:"run_id,omitempty"`
}

type CancelOutcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type AccountStatus struct {
	LoggedIn bool   `json:"logged_in"`
	HasState bool   `json:"has_state"`
	Account  string `json:"account,omitempty"`
}

type Service struct {
	cfg        Config
	controller *session.Controller
	events     *stream.Broadcaster
	drv        driver.Driver
	store      credstore.Store
	metrics    *observability.Metrics

	mu          sync.Mutex
	lastAccount string
}

func New(cfg Config, controller *session.Controller, events *stream.Broadcaster, drv driver.Driver, store credstore.Store, metrics *observability.Metrics) *Service {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 20 * time.Minute
	}
	return &Service{
		cfg:        cfg,
		controller: controller,
		events:     events,
		drv:        drv,
		store:      store,
		metrics:    metrics,
	}
}

// Start validates the request, resolves the secret, and launches the
// workflow goroutine. A second Start while a run is active reports
// AlreadyRunning without touching the live run.
func (s *Service) Start(ctx context.Context, req StartRequest) (StartOutcome, error) {
	account := strings.TrimSpace(req.Account)
	if account == "" {
		s.observeStart("rejected")
		return StartOutcome{}, fmt.Errorf("%w: account is required", ErrValidation)
	}

	secret := req.Secret
	if secret == "" {
		creds, err := s.store.GetCredentials(ctx, account)
		if errors.Is(err, credstore.ErrNotFound) {
			s.observeStart("rejected")
			return StartOutcome{}, fmt.Errorf("%w: no saved credentials for %s and no secret given", ErrValidation, account)
		}
		if err != nil {
			s.observeStart("rejected")
			return StartOutcome{}, fmt.Errorf("load credentials: %w", err)
		}
		secret = creds.Secret
	}

	res := s.controller.Start()
	if res.AlreadyRunning {
		s.observeStart("already_running")
		snap := s.controller.Get()
		return StartOutcome{AlreadyRunning: true, RunID: snap.RunID}, nil
	}
	s.observeStart("started")

	if req.SaveCredentials {
		if err := s.store.SaveCredentials(ctx, credstore.Credentials{Account: account, Secret: secret}); err != nil {
			log.Printf("runtime: save credentials for %s: %v", account, err)
		}
	}

	s.mu.Lock()
	s.lastAccount = account
	s.mu.Unlock()

	target := driver.Target{
		PortalURL:  s.cfg.PortalURL,
		Account:    account,
		Secret:     secret,
		Headless:   s.cfg.Headless,
		ProjectRef: strings.TrimSpace(req.ProjectRef),
	}
	go s.run(target)

	snap := s.controller.Get()
	return StartOutcome{Started: true, RunID: snap.RunID}, nil
}

// run owns the whole driver lifecycle. Driver errors and panics are
// normalized into a terminal failed state; nothing escapes the goroutine.
func (s *Service) run(target driver.Target) {
	started := time.Now()
	publisher := s.instrumentedPublisher()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	defer cancel()

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("driver panic: %v", r)
				log.Printf("runtime: recovered driver panic: %v", r)
			}
		}()
		runErr = s.drv.Run(ctx, target, s.controller, publisher)
	}()

	switch {
	case runErr == nil:
		s.controller.Success("portal session synchronized")
		publisher.Publish(stream.StepEvent{
			Phase:      stream.PhaseSuccess,
			ProjectRef: target.ProjectRef,
			Action:     stream.ActionWorkflow,
			Message:    "workflow completed",
		})
		s.observeOutcome("success")
	case errors.Is(runErr, driver.ErrCancelled):
		s.controller.Fail("cancelled by user")
		s.observeOutcome("cancelled")
	default:
		s.controller.Fail(runErr.Error())
		s.observeOutcome("failed")
	}

	if s.metrics != nil {
		s.metrics.ObserveRunDuration(time.Since(started))
	}
}

// Cancel requests cooperative cancellation. It always reports success: either
// the flag was set for a live run, or there was nothing to cancel.
func (s *Service) Cancel() CancelOutcome {
	if s.controller.RequestCancel() {
		return CancelOutcome{Success: true, Message: "cancellation requested"}
	}
	return CancelOutcome{Success: true, Message: "no active run"}
}

// Subscribe attaches a live step-event feed, optionally scoped to one
// project ref.
func (s *Service) Subscribe(projectRef string) (<-chan stream.StepEvent, func()) {
	return s.events.Subscribe(projectRef)
}

func (s *Service) Progress() session.Progress {
	return s.controller.Get()
}

// Status reports whether the last finished run left a usable portal session.
func (s *Service) Status(ctx context.Context) (AccountStatus, error) {
	snap := s.controller.Get()

	s.mu.Lock()
	account := s.lastAccount
	s.mu.Unlock()

	st := AccountStatus{
		LoggedIn: snap.Done && snap.Success,
		Account:  account,
	}
	if account == "" {
		return st, nil
	}
	has, err := s.store.HasPortalState(ctx, account)
	if err != nil {
		return st, fmt.Errorf("check portal state: %w", err)
	}
	st.HasState = has
	return st, nil
}

func (s *Service) observeStart(result string) {
	if s.metrics != nil {
		s.metrics.RunStarts.WithLabelValues(result).Inc()
	}
}

func (s *Service) observeOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.RunOutcomes.WithLabelValues(outcome).Inc()
	}
}

// instrumentedPublisher counts step events and feeds terminal step durations
// into the rolling perf window before fanning out to subscribers.
func (s *Service) instrumentedPublisher() driver.Publisher {
	return publisherFunc(func(ev stream.StepEvent) {
		if s.metrics != nil {
			s.metrics.StepEvents.WithLabelValues(string(ev.Phase)).Inc()
			if ev.DurationMs > 0 && (ev.Phase == stream.PhaseSuccess || ev.Phase == stream.PhaseError) {
				s.metrics.ObserveStepDuration(ev.Action, float64(ev.DurationMs))
			}
			if ev.Phase == stream.PhaseDelay {
				s.metrics.ObserveStepIndicator("user_wait_loop")
			}
		}
		s.events.Publish(ev)
	})
}

type publisherFunc func(ev stream.StepEvent)

func (f publisherFunc) Publish(ev stream.StepEvent) { f(ev) }
