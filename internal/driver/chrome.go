package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/nvalerio/portalsync/internal/credstore"
	"github.com/nvalerio/portalsync/internal/session"
	"github.com/nvalerio/portalsync/internal/stream"
)

// ChromeConfig tunes the headless-browser workflow. The selector defaults
// match the portal's current login markup.
type ChromeConfig struct {
	NavigateTimeout  time.Duration
	UserWaitPoll     time.Duration
	MaxUserWaitLoops int

	AccountSelector string
	SecretSelector  string
	SubmitSelector  string
	ReadySelector   string
}

func (c ChromeConfig) withDefaults() ChromeConfig {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 45 * time.Second
	}
	if c.UserWaitPoll <= 0 {
		c.UserWaitPoll = 5 * time.Second
	}
	if c.MaxUserWaitLoops <= 0 {
		c.MaxUserWaitLoops = 36
	}
	if c.AccountSelector == "" {
		c.AccountSelector = `input[name="email"]`
	}
	if c.SecretSelector == "" {
		c.SecretSelector = `input[name="password"]`
	}
	if c.SubmitSelector == "" {
		c.SubmitSelector = `button[type="submit"]`
	}
	if c.ReadySelector == "" {
		c.ReadySelector = `[data-app-ready]`
	}
	return c
}

// ChromeDriver runs the real portal workflow in a Chrome instance via the
// DevTools protocol. It is deliberately the only package that knows anything
// about the portal's UI.
type ChromeDriver struct {
	cfg   ChromeConfig
	store credstore.Store
}

func NewChromeDriver(cfg ChromeConfig, store credstore.Store) *ChromeDriver {
	return &ChromeDriver{cfg: cfg.withDefaults(), store: store}
}

var chromePlan = []stream.PlanStep{
	{Action: "open_portal", StepIndex: 0},
	{Action: "submit_credentials", StepIndex: 1},
	{Action: "wait_user_confirm", StepIndex: 2},
	{Action: "check_session", StepIndex: 3},
	{Action: "persist_state", StepIndex: 4},
}

func (d *ChromeDriver) Run(ctx context.Context, target Target, status StatusReporter, events Publisher) error {
	events.Publish(stream.StepEvent{
		Phase:      stream.PhasePlan,
		ProjectRef: target.ProjectRef,
		TotalSteps: len(chromePlan),
		Plan:       chromePlan,
	})

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", target.Headless),
		chromedp.Flag("disable-gpu", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if err := d.openPortal(browserCtx, target, status, events); err != nil {
		return err
	}
	if err := d.submitCredentials(browserCtx, target, status, events); err != nil {
		return err
	}
	if err := d.waitForUser(browserCtx, target, status, events); err != nil {
		return err
	}
	if err := d.checkSession(browserCtx, target, status, events); err != nil {
		return err
	}
	return d.persistState(browserCtx, target, status, events)
}

func (d *ChromeDriver) openPortal(ctx context.Context, target Target, status StatusReporter, events Publisher) error {
	if status.WasCancelRequested() {
		return ErrCancelled
	}
	if err := status.Update(session.PhaseOpeningPortal, "opening portal"); err != nil {
		return err
	}
	done := d.step(events, target, "open_portal", 0)

	navCtx, cancel := context.WithTimeout(ctx, d.cfg.NavigateTimeout)
	defer cancel()
	err := chromedp.Run(navCtx,
		chromedp.Navigate(target.PortalURL),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	)
	if err != nil {
		return done(fmt.Errorf("navigate portal: %w", err))
	}
	return done(nil)
}

func (d *ChromeDriver) submitCredentials(ctx context.Context, target Target, status StatusReporter, events Publisher) error {
	if status.WasCancelRequested() {
		return ErrCancelled
	}
	done := d.step(events, target, "submit_credentials", 1)

	err := chromedp.Run(ctx,
		chromedp.WaitVisible(d.cfg.AccountSelector, chromedp.ByQuery),
		chromedp.SendKeys(d.cfg.AccountSelector, target.Account, chromedp.ByQuery),
		chromedp.SendKeys(d.cfg.SecretSelector, target.Secret, chromedp.ByQuery),
		chromedp.Click(d.cfg.SubmitSelector, chromedp.ByQuery),
	)
	if err != nil {
		return done(fmt.Errorf("submit credentials: %w", err))
	}
	return done(nil)
}

// waitForUser polls for the portal's post-MFA ready marker. Each loop is a
// cancellation checkpoint and bumps the attempt counter so observers can see
// how long the user has been keeping the run waiting.
func (d *ChromeDriver) waitForUser(ctx context.Context, target Target, status StatusReporter, events Publisher) error {
	if err := status.Update(session.PhaseWaitingUser, "waiting for user confirmation"); err != nil {
		return err
	}
	done := d.step(events, target, "wait_user_confirm", 2)

	for i := 0; i < d.cfg.MaxUserWaitLoops; i++ {
		if status.WasCancelRequested() {
			return done(ErrCancelled)
		}
		status.IncrementAttempt()

		pollCtx, cancel := context.WithTimeout(ctx, d.cfg.UserWaitPoll)
		err := chromedp.Run(pollCtx,
			chromedp.WaitVisible(d.cfg.ReadySelector, chromedp.ByQuery),
		)
		cancel()
		if err == nil {
			return done(nil)
		}
		if ctx.Err() != nil {
			return done(ctx.Err())
		}
		idx := 2
		events.Publish(stream.StepEvent{
			Phase:      stream.PhaseDelay,
			ProjectRef: target.ProjectRef,
			Action:     "wait_user_confirm",
			StepIndex:  &idx,
			Message:    fmt.Sprintf("still waiting for confirmation (attempt %d)", i+1),
		})
	}
	return done(fmt.Errorf("user confirmation timed out after %d attempts", d.cfg.MaxUserWaitLoops))
}

func (d *ChromeDriver) checkSession(ctx context.Context, target Target, status StatusReporter, events Publisher) error {
	if status.WasCancelRequested() {
		return ErrCancelled
	}
	if err := status.Update(session.PhaseCheckingSession, "verifying session"); err != nil {
		return err
	}
	done := d.step(events, target, "check_session", 3)

	var ready bool
	err := chromedp.Run(ctx,
		chromedp.Evaluate(`document.querySelector('`+d.cfg.ReadySelector+`') !== null`, &ready),
	)
	if err != nil {
		return done(fmt.Errorf("check session: %w", err))
	}
	if !ready {
		return done(fmt.Errorf("portal session not established"))
	}
	return done(nil)
}

func (d *ChromeDriver) persistState(ctx context.Context, target Target, status StatusReporter, events Publisher) error {
	if status.WasCancelRequested() {
		return ErrCancelled
	}
	if err := status.Update(session.PhasePersistingState, "saving session state"); err != nil {
		return err
	}
	done := d.step(events, target, "persist_state", 4)

	var state string
	err := chromedp.Run(ctx,
		chromedp.Evaluate(`JSON.stringify({cookies: document.cookie, storage: Object.assign({}, window.localStorage)})`, &state),
	)
	if err != nil {
		return done(fmt.Errorf("extract session state: %w", err))
	}
	if err := d.store.SavePortalState(ctx, credstore.PortalState{
		Account: target.Account,
		Payload: []byte(state),
	}); err != nil {
		return done(fmt.Errorf("persist session state: %w", err))
	}
	return done(nil)
}

// step publishes the start event for an action and returns a closure that
// publishes the matching terminal event and passes the error through.
func (d *ChromeDriver) step(events Publisher, target Target, action string, index int) func(error) error {
	idx := index
	started := time.Now()
	events.Publish(stream.StepEvent{
		Phase:      stream.PhaseStart,
		ProjectRef: target.ProjectRef,
		Action:     action,
		StepIndex:  &idx,
	})
	return func(err error) error {
		ev := stream.StepEvent{
			ProjectRef: target.ProjectRef,
			Action:     action,
			StepIndex:  &idx,
			DurationMs: time.Since(started).Milliseconds(),
		}
		if err != nil {
			ev.Phase = stream.PhaseError
			ev.Message = err.Error()
		} else {
			ev.Phase = stream.PhaseSuccess
		}
		events.Publish(ev)
		return err
	}
}
