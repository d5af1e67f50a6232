package dashboard

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lowaak/nrg-watch/internal/go_func_utils"
)

const refreshInterval = 100 * time.Millisecond

// Dashboard connects the model's events to a View.
type Dashboard struct {
	view       View
	model      *Model
	controller *Controller
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *log.Logger
	stopOnce   sync.Once
	renderMu   sync.Mutex
}

type NewDashboardArg struct {
	View       View
	Model      *Model
	Controller *Controller
	Logger     *log.Logger
}

func NewDashboard(args NewDashboardArg) *Dashboard {
	if args.Logger == nil {
		panic("Dashboard: logger cannot be nil")
	}
	if args.View == nil {
		panic("Dashboard: view cannot be nil")
	}
	if args.Model == nil {
		panic("Dashboard: model cannot be nil")
	}
	if args.Controller == nil {
		panic("Dashboard: controller cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		view:       args.View,
		model:      args.Model,
		controller: args.Controller,
		ctx:        ctx,
		cancel:     cancel,
		logger:     args.Logger,
	}

	d.view.Initialize(d.controller)
	d.render()
	d.updateLogDisplay()

	go_func_utils.SafeGoGroup(d.logger, &d.wg, d.refreshLoop)
	d.setupEventListeners()
	return d
}

func (d *Dashboard) setupEventListeners() {
	logChan := make(chan string, 1)
	logUnregister := d.model.ListenToLog(logChan)
	go_func_utils.SafeGoGroup(d.logger, &d.wg, func() {
		defer logUnregister()
		for {
			select {
			case <-d.ctx.Done():
				return
			case _, ok := <-logChan:
				if !ok {
					return
				}
				d.updateLogDisplay()
				d.draw()
			}
		}
	})

	changedChan := make(chan struct{}, 1)
	changedUnregister := d.model.ListenToChanges(changedChan)
	go_func_utils.SafeGoGroup(d.logger, &d.wg, func() {
		defer changedUnregister()
		for {
			select {
			case <-d.ctx.Done():
				return
			case _, ok := <-changedChan:
				if !ok {
					return
				}
				d.render()
				d.draw()
			}
		}
	})

	closeChan := make(chan struct{}, 1)
	closeUnregister := d.model.ListenToCloseApplication(closeChan)
	go_func_utils.SafeGoGroup(d.logger, &d.wg, func() {
		defer closeUnregister()
		select {
		case <-d.ctx.Done():
			return
		case _, ok := <-closeChan:
			if !ok {
				return
			}
			d.view.Stop()
		}
	})
}

func (d *Dashboard) render() {
	d.renderMu.Lock()
	defer d.renderMu.Unlock()
	d.view.Render(d.model.ViewState())
}

func (d *Dashboard) draw() {
	if err := d.view.Draw(); err != nil {
		d.logger.Printf("Dashboard: Error drawing: %v", err)
	}
}

func (d *Dashboard) updateLogDisplay() {
	height := d.view.GetLogViewHeight()
	if height <= 0 {
		return
	}
	d.view.ClearLogView()
	for _, line := range d.model.GetLogTail(height) {
		if err := d.view.WriteLogLine(line); err != nil {
			d.logger.Printf("Dashboard: Error writing to log view: %v", err)
		}
	}
}

// refreshLoop follows the hold progress, the undo countdown and the log
// pane height, none of which raise model events on their own.
func (d *Dashboard) refreshLoop() {
	var lastHeight int
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.controller.RefreshHold()
			if d.model.ViewState().Page == PageUndo {
				d.render()
				d.draw()
			}
			height := d.view.GetLogViewHeight()
			if height != lastHeight && height > 0 {
				lastHeight = height
				d.updateLogDisplay()
				d.draw()
			}
		}
	}
}

// Run starts the UI and blocks until it exits
func (d *Dashboard) Run() error {
	return d.view.Run()
}

// Shutdown stops all goroutines and waits for them to finish.
// Safe to call multiple times.
func (d *Dashboard) Shutdown() {
	d.stopOnce.Do(func() {
		d.logger.Println("Dashboard: Shutting down")
		d.cancel()
		d.wg.Wait()
		d.logger.Println("Dashboard: Shutdown complete")
	})
}
