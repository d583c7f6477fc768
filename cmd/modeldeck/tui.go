// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/harborml/modeldeck/pkg/inventory"
	"github.com/harborml/modeldeck/pkg/viewmodel"
)

// =============================================================================
// Messages
// =============================================================================

// refreshedMsg signals a completed inventory refresh.
type refreshedMsg struct {
	err error
}

// storeChangedMsg signals an external change to the model directory.
type storeChangedMsg struct{}

// deletionsMsg carries the result of an executed deletion batch.
type deletionsMsg struct {
	report viewmodel.DeletionReport
}

// =============================================================================
// Model
// =============================================================================

// browseModel is the bubbletea model for the interactive inventory view.
//
// # Thread Safety
//
// All state lives in the bubbletea event loop. The engine and coordinator
// are internally synchronized, so the async refresh and deletion commands
// can call them from their own goroutines.
type browseModel struct {
	app *app

	// Query state
	search    textinput.Model
	searching bool
	filterIdx int
	sortIdx   int

	// List state
	models      []viewmodel.EnrichedModel
	cursor      int
	showDetails bool

	// Async state
	refreshing bool
	deleting   bool
	confirmX   bool
	status     string

	// Terminal dimensions
	width  int
	height int

	quitting bool
}

func newBrowseModel(a *app) browseModel {
	search := textinput.New()
	search.Placeholder = "name or capability"
	search.Prompt = "/ "
	search.CharLimit = 64

	return browseModel{
		app:    a,
		search: search,
	}
}

// Init implements tea.Model.
func (m browseModel) Init() tea.Cmd {
	return m.refreshCmd()
}

// refreshCmd runs an inventory refresh off the event loop.
func (m browseModel) refreshCmd() tea.Cmd {
	engine := m.app.engine
	return func() tea.Msg {
		return refreshedMsg{err: engine.Refresh(context.Background())}
	}
}

// executeCmd runs the queued deletions off the event loop.
func (m browseModel) executeCmd() tea.Cmd {
	coordinator := m.app.coordinator
	return func() tea.Msg {
		return deletionsMsg{report: coordinator.ExecuteDeletions(context.Background())}
	}
}

// query assembles the current view settings.
func (m *browseModel) query() viewmodel.Query {
	return viewmodel.Query{
		Search: m.search.Value(),
		Filter: viewmodel.Filters[m.filterIdx],
		Sort:   viewmodel.SortKeys[m.sortIdx],
	}
}

// reload re-runs the query pipeline and clamps the cursor.
func (m *browseModel) reload() {
	m.models = m.app.engine.Models(m.query())
	if m.cursor >= len(m.models) {
		m.cursor = len(m.models) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// current returns the model under the cursor.
func (m *browseModel) current() (viewmodel.EnrichedModel, bool) {
	if m.cursor < 0 || m.cursor >= len(m.models) {
		return viewmodel.EnrichedModel{}, false
	}
	return m.models[m.cursor], true
}

// Update implements tea.Model.
func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case refreshedMsg:
		m.refreshing = false
		if msg.err != nil {
			m.status = refreshFailureStatus(msg.err)
		} else {
			m.status = fmt.Sprintf("refreshed at %s", time.Now().Format("15:04:05"))
		}
		m.reload()
		return m, nil

	case storeChangedMsg:
		m.app.engine.MarkStale()
		m.status = "model store changed outside modeldeck; press R to refresh"
		return m, nil

	case deletionsMsg:
		m.deleting = false
		report := msg.report
		m.status = fmt.Sprintf("deleted %d, failed %d, recovered %s",
			len(report.Succeeded), len(report.Failed), formatBytes(report.RecoveredBytes))
		m.reload()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m browseModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Search input grabs every key until enter or esc.
	if m.searching {
		switch msg.String() {
		case "enter":
			m.searching = false
			m.search.Blur()
		case "esc":
			m.searching = false
			m.search.SetValue("")
			m.search.Blur()
		default:
			var cmd tea.Cmd
			m.search, cmd = m.search.Update(msg)
			m.reload()
			return m, cmd
		}
		m.reload()
		return m, nil
	}

	// Pending execute confirmation.
	if m.confirmX {
		m.confirmX = false
		if msg.String() == "y" || msg.String() == "Y" {
			m.deleting = true
			m.status = "deleting queued models..."
			return m, m.executeCmd()
		}
		m.status = "deletion cancelled"
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.models)-1 {
			m.cursor++
		}

	case "g", "home":
		m.cursor = 0

	case "G", "end":
		m.cursor = len(m.models) - 1

	case "/":
		m.searching = true
		m.search.Focus()

	case "f":
		m.filterIdx = (m.filterIdx + 1) % len(viewmodel.Filters)
		m.cursor = 0
		m.reload()

	case "o":
		m.sortIdx = (m.sortIdx + 1) % len(viewmodel.SortKeys)
		m.reload()

	case "enter":
		m.showDetails = !m.showDetails

	case "s":
		if model, ok := m.current(); ok {
			on, err := m.app.engine.ToggleStar(model.Name)
			m.status = toggleStatus(model.Name, "star", on, err)
			m.reload()
		}

	case "d":
		if model, ok := m.current(); ok {
			on, err := m.app.engine.ToggleQueued(model.Name)
			m.status = toggleStatus(model.Name, "queue", on, err)
			m.reload()
		}

	case "r":
		if model, ok := m.current(); ok && model.QueuedForDeletion {
			_, err := m.app.engine.ToggleQueued(model.Name)
			m.status = toggleStatus(model.Name, "queue", false, err)
			m.reload()
		}

	case "R":
		if !m.refreshing {
			m.refreshing = true
			m.status = "refreshing..."
			return m, m.refreshCmd()
		}

	case "x":
		if m.deleting {
			break
		}
		queued := m.app.coordinator.ListQueued()
		if len(queued) == 0 {
			m.status = "deletion queue is empty"
			break
		}
		m.confirmX = true
		m.status = fmt.Sprintf("delete %d model(s), recovering %s? (y/n)",
			len(queued), formatBytes(m.app.coordinator.QueuedStorageEstimate()))
	}

	return m, nil
}

// toggleStatus formats the footer line after a flag toggle.
func toggleStatus(name, what string, on bool, err error) string {
	state := "off"
	if on {
		state = "on"
	}
	if err != nil {
		return fmt.Sprintf("%s %s %s (save failed, change is session-only)", name, what, state)
	}
	return fmt.Sprintf("%s %s %s", name, what, state)
}

// refreshFailureStatus keeps the footer short; the log has the detail.
func refreshFailureStatus(err error) string {
	var re *inventory.RunnerError
	if errors.As(err, &re) {
		return "refresh failed: " + re.Message + " (showing last known inventory)"
	}
	return "refresh failed (showing last known inventory)"
}

// =============================================================================
// View
// =============================================================================

var (
	tuiTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	tuiStaleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	tuiCursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	tuiHelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	tuiDetailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			PaddingLeft(6)
)

// View implements tea.Model.
func (m browseModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderList())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m browseModel) renderHeader() string {
	title := tuiTitleStyle.Render("modeldeck")
	state := fmt.Sprintf("%d models  filter:%s  sort:%s",
		len(m.models), viewmodel.Filters[m.filterIdx], viewmodel.SortKeys[m.sortIdx])
	if m.app.engine.Stale() {
		state += "  " + tuiStaleStyle.Render("[stale]")
	}

	line := title + "  " + dimStyle.Render(state)
	if m.searching || m.search.Value() != "" {
		line += "\n" + m.search.View()
	}
	return line
}

func (m browseModel) renderList() string {
	if len(m.models) == 0 {
		return dimStyle.Render("  no models match")
	}

	// Leave room for header, search line, footer and status.
	visible := m.height - 6
	if visible < 5 {
		visible = 5
	}
	top := 0
	if m.cursor >= visible {
		top = m.cursor - visible + 1
	}

	now := time.Now()
	var b strings.Builder
	for i := top; i < len(m.models) && i < top+visible; i++ {
		model := m.models[i]
		marker := "  "
		row := fmt.Sprintf("%s %-34s %10s  %-14s %s",
			statusIcons(model),
			model.Name,
			formatBytes(model.SizeBytes),
			formatRelative(model.ModifiedAt, now),
			capabilityList(model),
		)
		if i == m.cursor {
			marker = "> "
			row = tuiCursorStyle.Render(row)
		}
		b.WriteString(marker + row + "\n")

		if i == m.cursor && m.showDetails {
			b.WriteString(m.renderDetails(model, now))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m browseModel) renderDetails(model viewmodel.EnrichedModel, now time.Time) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("id %s  age %s", model.ID, model.Age))
	if model.Usage.Count > 0 {
		lines = append(lines, fmt.Sprintf("used %d time(s), last %s",
			model.Usage.Count, formatRelative(derefTime(model.Usage.LastUsed), now)))
	}
	if model.Family != nil {
		members := append([]string{}, model.Family.Duplicates...)
		members = append(members, model.Family.SpecialVariants...)
		lines = append(lines, fmt.Sprintf("family %s: %s",
			model.Family.Base, strings.Join(members, ", ")))
	}
	if model.Liberated {
		lines = append(lines, "uncensored variant")
	}
	return tuiDetailStyle.Render(strings.Join(lines, "\n")) + "\n"
}

func (m browseModel) renderFooter() string {
	help := "s star  d queue  r unqueue  x execute  / search  f filter  o sort  enter details  R refresh  q quit"
	footer := tuiHelpStyle.Render(help)
	if m.status != "" {
		footer = m.status + "\n" + footer
	}
	return footer
}

// =============================================================================
// Command
// =============================================================================

func runBrowse(cmd *cobra.Command, args []string) {
	a, err := buildApp(true)
	if err != nil {
		fatal("Cannot start", err)
	}
	defer a.close()

	program := tea.NewProgram(newBrowseModel(a), tea.WithAltScreen())

	// External changes to the model store flip the staleness flag while
	// the TUI is open. Best effort; a missing directory disables it.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher := inventory.NewStoreWatcher(a.manifestDir, 0, func() {
		program.Send(storeChangedMsg{})
	}, a.logger.Slog())
	watcher.Start(ctx)
	defer watcher.Stop()

	if _, err := program.Run(); err != nil {
		fatal("TUI failed", err)
	}
}
