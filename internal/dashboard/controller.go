package dashboard

import (
	"context"
	"log"
	"sync"

	"github.com/lowaak/nrg-watch/internal/go_func_utils"
	"github.com/lowaak/nrg-watch/internal/tracker"
)

// Session is the command and query surface of *tracker.Controller the
// dashboard drives.
type Session interface {
	StartSession(profile tracker.AthleteProfile, opts tracker.StartOptions) (string, error)
	StopSession() (tracker.RunSummary, error)
	BeginManualHold() error
	BeginConfirmHold() error
	ReleaseHold() bool
	HoldProgress() float64
	Undo() error
	Profile() tracker.AthleteProfile
	Status() tracker.Status
	ListenToStatus(ch chan<- tracker.Status) func()
}

// Controller turns key presses into session commands and keeps the model in
// step with the session.
type Controller struct {
	model        *Model
	session      Session
	startOptions tracker.StartOptions
	logger       *log.Logger
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

func NewController(model *Model, session Session, startOptions tracker.StartOptions, logger *log.Logger) *Controller {
	if model == nil {
		panic("DashboardController: model cannot be nil")
	}
	if session == nil {
		panic("DashboardController: session cannot be nil")
	}
	if logger == nil {
		panic("DashboardController: logger cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		model:        model,
		session:      session,
		startOptions: startOptions,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
	go_func_utils.SafeGoGroup(logger, &c.wg, c.listenToStatus)
	return c
}

func (c *Controller) listenToStatus() {
	ch := make(chan tracker.Status, 1)
	unregister := c.session.ListenToStatus(ch)
	defer unregister()

	for {
		select {
		case <-c.ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			// a full channel drops newer statuses, so read the current one
			c.model.SetStatus(c.session.Status())
		}
	}
}

// Shutdown stops all goroutines and waits for them to finish
func (c *Controller) Shutdown() {
	c.cancel()
	c.wg.Wait()
}

func (c *Controller) StartRun() {
	id, err := c.session.StartSession(c.session.Profile(), c.startOptions)
	if err != nil {
		c.logger.Printf("Cannot start run: %v", err)
		return
	}
	c.logger.Printf("Run %s started", id)
}

func (c *Controller) FinishRun() {
	summary, err := c.session.StopSession()
	if err != nil {
		c.logger.Printf("Cannot finish run: %v", err)
		return
	}
	c.model.SetSummary(summary)
	c.logger.Printf("Run finished: %s, %s, %d gels",
		tracker.FormatElapsed(summary.ElapsedSeconds), tracker.FormatDistanceKm(summary.DistanceMeters), len(summary.Splits))
}

// ManualGel starts the hold that records a gel taken without an alert.
func (c *Controller) ManualGel() {
	if err := c.session.BeginManualHold(); err != nil {
		c.logger.Printf("Cannot record gel: %v", err)
	}
}

// ConfirmGel starts the hold that accepts the current alert.
func (c *Controller) ConfirmGel() {
	if err := c.session.BeginConfirmHold(); err != nil {
		c.logger.Printf("Nothing to confirm: %v", err)
	}
}

func (c *Controller) ReleaseHold() {
	if c.session.ReleaseHold() {
		c.logger.Printf("Hold released early, keep holding to confirm")
	}
	c.model.SetHoldProgress(0)
}

func (c *Controller) Undo() {
	if err := c.session.Undo(); err != nil {
		c.logger.Printf("Nothing to undo: %v", err)
	}
}

func (c *Controller) NextPage() {
	c.model.NextPage()
}

// RefreshHold copies the current hold progress into the model.
func (c *Controller) RefreshHold() {
	c.model.SetHoldProgress(c.session.HoldProgress())
}

// OnEscapeKey handles when the Escape key is pressed
func (c *Controller) OnEscapeKey() {
	c.model.RequestCloseApplication()
}
