// Package tui is the terminal front-end of the converter.
//
// Files come from the built-in picker or from a pasted path; most
// terminals paste the path of a file dragged onto the window, so a paste
// counts as a drop.
package tui

import (
	"context"
	"os"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/JonMunkholm/frondo/internal/logging"
	"github.com/JonMunkholm/frondo/internal/manuscript"
)

type mode int

const (
	modeMenu mode = iota
	modePicker
)

// Info is static context shown in the Info menu.
type Info struct {
	ServiceURL string
	Accept     string
}

/* ----------------------------------------
	MESSAGES
---------------------------------------- */

// viewMsg carries a controller snapshot into the bubbletea loop.
type viewMsg manuscript.View

// closedMsg reports that the controller stopped publishing.
type closedMsg struct{}

// acquiredMsg carries a file read from disk.
type acquiredMsg struct {
	file manuscript.AcquiredFile
}

// noticeMsg is a one-line message for problems that never reach the
// controller (unreadable path, file too large).
type noticeMsg string

/* ----------------------------------------
	MODEL
---------------------------------------- */

// Model wraps one controller. It never writes the controller's state
// itself: events go through Dispatch and the screen follows snapshots.
type Model struct {
	ctx         context.Context
	ctrl        *manuscript.Controller
	acquirer    *manuscript.Acquirer
	views       <-chan manuscript.View
	unsubscribe func()

	view    manuscript.View
	menu    *Menu
	cursor  int
	mode    mode
	notice  string
	picker  filepicker.Model
	spinner spinner.Model
	width   int
}

// New builds the model and subscribes to ctrl.
func New(ctx context.Context, ctrl *manuscript.Controller, acquirer *manuscript.Acquirer, info Info) *Model {
	fp := filepicker.New()
	fp.AllowedTypes = acquirer.Filter.PickerExtensions()
	if dir, err := os.Getwd(); err == nil {
		fp.CurrentDirectory = dir
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.spinner

	views, unsubscribe := ctrl.Subscribe()

	return &Model{
		ctx:         ctx,
		ctrl:        ctrl,
		acquirer:    acquirer,
		views:       views,
		unsubscribe: unsubscribe,
		view:        ctrl.Snapshot(),
		menu:        buildMenuTree(info),
		picker:      fp,
		spinner:     sp,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForView(), m.spinner.Tick)
}

// waitForView bridges the subscription channel into messages.
func (m *Model) waitForView() tea.Cmd {
	views := m.views
	return func() tea.Msg {
		v, ok := <-views
		if !ok {
			return closedMsg{}
		}
		return viewMsg(v)
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case viewMsg:
		m.view = manuscript.View(msg)
		return m, m.waitForView()

	case closedMsg:
		return m, nil

	case acquiredMsg:
		m.notice = ""
		file := msg.file
		if file.Source == manuscript.SourceDrop {
			m.ctrl.Dispatch(manuscript.Drop{File: &file})
		} else {
			m.ctrl.Dispatch(manuscript.FileChosen{File: file})
		}
		return m, nil

	case noticeMsg:
		m.notice = string(msg)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Paste {
			return m, m.acquirePath(string(msg.Runes), manuscript.SourceDrop)
		}
		if msg.String() == "ctrl+c" {
			return m, m.quit()
		}
		if m.mode == modePicker {
			return m.updatePicker(msg)
		}
		return m.updateMenu(msg)
	}

	if m.mode == modePicker {
		return m.updatePicker(msg)
	}
	return m, nil
}

func (m *Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, m.quit()
	case "o":
		return m, m.openPicker()
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "enter":
		return m, m.selectItem()
	case "esc":
		if m.menu.Parent != nil {
			m.menu = m.menu.Parent
			m.cursor = 0
		}
	}
	return m, nil
}

// updatePicker forwards to the file picker. Files outside the accept
// filter can still be chosen: the filter only guides.
func (m *Model) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		m.mode = modeMenu
		return m, nil
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)

	if ok, path := m.picker.DidSelectFile(msg); ok {
		m.mode = modeMenu
		return m, tea.Batch(cmd, m.acquirePath(path, manuscript.SourcePicker))
	}
	if ok, path := m.picker.DidSelectDisabledFile(msg); ok {
		m.mode = modeMenu
		return m, tea.Batch(cmd, m.acquirePath(path, manuscript.SourcePicker))
	}
	return m, cmd
}

func (m *Model) openPicker() tea.Cmd {
	m.mode = modePicker
	m.notice = ""
	return m.picker.Init()
}

func (m *Model) quit() tea.Cmd {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	return tea.Quit
}

// acquirePath reads the file off the UI goroutine.
func (m *Model) acquirePath(path string, source manuscript.Source) tea.Cmd {
	ctx, acquirer := m.ctx, m.acquirer
	return func() tea.Msg {
		file, err := acquirer.AcquireFromPath(ctx, path, source)
		if err != nil {
			logging.FromContext(ctx).Warn("acquisition failed", "path", path, "error", err)
			return noticeMsg("Could not read " + manuscript.CleanDroppedPath(path) + ": " + err.Error())
		}
		return acquiredMsg{file: file}
	}
}

func (m *Model) View() string {
	var picker string
	if m.mode == modePicker {
		picker = m.picker.View()
	}
	return render(screen{
		view:    m.view,
		menu:    m.menu,
		cursor:  m.cursor,
		picker:  picker,
		notice:  m.notice,
		spinner: m.spinner.View(),
		width:   m.width,
	})
}
