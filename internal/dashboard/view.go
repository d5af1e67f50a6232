package dashboard

import (
	"fmt"
	"log"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// View is the rendering surface driven by Dashboard.
type View interface {
	Initialize(controller *Controller)
	Run() error
	Stop()
	Draw() error
	Render(state ViewState)
	GetLogViewHeight() int
	ClearLogView()
	WriteLogLine(line string) error
}

// Page names for tview.Pages
const (
	pageNameHome       = "home"
	pageNameMetrics    = "metrics"
	pageNameSupplement = "supplement"
	pageNameUndo       = "undo"
	pageNameStop       = "stop"
)

func pageName(page Page) string {
	switch page {
	case PageMetrics:
		return pageNameMetrics
	case PageSupplement:
		return pageNameSupplement
	case PageUndo:
		return pageNameUndo
	case PageStop:
		return pageNameStop
	default:
		return pageNameHome
	}
}

// TviewView implements View with tview.
type TviewView struct {
	logger     *log.Logger
	app        *tview.Application
	controller *Controller

	pages       *tview.Pages
	panels      map[Page]*tview.TextView
	logView     *tview.TextView
	mainFlex    *tview.Flex
	currentPage Page
}

func NewTviewView(logger *log.Logger, app *tview.Application) *TviewView {
	if logger == nil {
		panic("DashboardView: logger cannot be nil")
	}
	if app == nil {
		panic("DashboardView: app cannot be nil")
	}
	return &TviewView{
		logger: logger,
		app:    app,
		panels: make(map[Page]*tview.TextView),
	}
}

// Initialize builds the widgets and installs the key handler.
func (ui *TviewView) Initialize(controller *Controller) {
	ui.controller = controller

	// No SetChangedFunc with app.Draw() here, Dashboard draws after each update.
	ui.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	ui.logView.SetBorder(true).SetTitle(" Logs ")

	instructions := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	instructions.SetText(instructionsText)

	ui.pages = tview.NewPages()
	for _, page := range []Page{PageHome, PageMetrics, PageSupplement, PageUndo, PageStop} {
		panel := tview.NewTextView().SetDynamicColors(true)
		panel.SetBorder(true).SetTitle(pageTitle(page))
		ui.panels[page] = panel
		ui.pages.AddPage(pageName(page), panel, true, page == PageHome)
	}

	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.pages, 0, 1, true).
		AddItem(instructions, 2, 0, false)

	ui.mainFlex = tview.NewFlex().
		AddItem(left, 0, 1, true).
		AddItem(ui.logView, 0, 1, false)

	ui.app.SetInputCapture(ui.handleKey)
}

// handleKey maps keys to controller commands. Unhandled keys pass through.
func (ui *TviewView) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyTab:
		ui.controller.NextPage()
		return nil
	case tcell.KeyEscape:
		ui.controller.OnEscapeKey()
		return nil
	case tcell.KeyRune:
		switch event.Rune() {
		case 's':
			ui.controller.StartRun()
		case 'g':
			ui.controller.ManualGel()
		case 'c':
			ui.controller.ConfirmGel()
		case ' ':
			ui.controller.ReleaseHold()
		case 'u':
			ui.controller.Undo()
		case 'f':
			ui.controller.FinishRun()
		default:
			return event
		}
		return nil
	}
	return event
}

// Render writes the state into its page and brings that page to the front.
func (ui *TviewView) Render(state ViewState) {
	panel, ok := ui.panels[state.Page]
	if !ok {
		ui.logger.Printf("DashboardView: No panel for page %s", state.Page)
		return
	}
	panel.SetText(renderPage(state))
	if state.Page != ui.currentPage {
		ui.currentPage = state.Page
		ui.pages.SwitchToPage(pageName(state.Page))
	}
}

func (ui *TviewView) GetLogViewHeight() int {
	_, _, _, height := ui.logView.GetInnerRect()
	return height
}

func (ui *TviewView) ClearLogView() {
	ui.logView.Clear()
}

func (ui *TviewView) WriteLogLine(line string) error {
	_, err := fmt.Fprintln(ui.logView, line)
	return err
}

func (ui *TviewView) Draw() error {
	ui.app.Draw()
	return nil
}

// Run starts the UI and blocks until it exits
func (ui *TviewView) Run() error {
	ui.app.SetRoot(ui.mainFlex, true)
	return ui.app.Run()
}

// Stop stops the UI framework
func (ui *TviewView) Stop() {
	ui.app.Stop()
}
