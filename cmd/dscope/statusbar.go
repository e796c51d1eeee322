package main

import (
	"fmt"
	"strings"
	"time"
)

// statusBarModel shows the connection identity and activity counters.
type statusBarModel struct {
	busLabel  string
	uniqueName string
	service   string
	pending   int
	watched   int
	duration  time.Duration
	notice    string
}

func newStatusBar(busLabel, uniqueName string) statusBarModel {
	return statusBarModel{busLabel: busLabel, uniqueName: uniqueName}
}

func (m statusBarModel) View() string {
	parts := []string{fmt.Sprintf(" %s (%s)", m.busLabel, m.uniqueName)}
	if m.service != "" {
		parts = append(parts, m.service)
	}
	if m.pending > 0 {
		parts = append(parts, fmt.Sprintf("%d in flight", m.pending))
	}
	if m.watched > 0 {
		parts = append(parts, fmt.Sprintf("%d watched", m.watched))
	}
	if m.duration > 0 {
		parts = append(parts, fmtDuration(m.duration))
	}
	if m.notice != "" {
		parts = append(parts, m.notice)
	}
	return statusStyle.Render(strings.Join(parts, " · "))
}
