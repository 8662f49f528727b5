package jobs

import (
	"errors"
	"fmt"
	"sync"

	"video-upscaler/internal/domain"
)

// ErrJobAlreadyRunning is returned when starting a second active export.
var ErrJobAlreadyRunning = errors.New("export already running")

// ErrNoRunningJob is returned when cancel is requested for idle state.
var ErrNoRunningJob = errors.New("no running export")

// Manager tracks the single allowed active export and its transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.ExportJob
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.ExportJob{
			Status: domain.ExportStatusIdle,
		},
	}
}

// Start registers job and moves it to priming state.
func (m *Manager) Start(job domain.ExportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isRunning(m.current.Status) {
		return ErrJobAlreadyRunning
	}
	if job.ID == "" {
		return fmt.Errorf("export id is required")
	}

	job.Status = domain.ExportStatusPriming
	job.Progress = 0
	m.current = job
	return nil
}

// Transition validates and applies state transitions for current job.
func (m *Manager) Transition(status domain.ExportStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" && status != domain.ExportStatusIdle {
		return fmt.Errorf("cannot transition without an active export")
	}
	if status == m.current.Status {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	if status == domain.ExportStatusDone {
		m.current.Progress = 100
	}
	return nil
}

// SetProgress raises progress of the running export. Lower values are
// ignored so observers never see progress go backwards.
func (m *Manager) SetProgress(percent int) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	percent = max(0, min(100, percent))
	if !isRunning(m.current.Status) || percent <= m.current.Progress {
		return m.current.Progress, false
	}
	m.current.Progress = percent
	return percent, true
}

// Update applies fn to the current job under lock. Status and ID changes
// made by fn are discarded.
func (m *Manager) Update(fn func(*domain.ExportJob)) domain.ExportJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, status := m.current.ID, m.current.Status
	fn(&m.current)
	m.current.ID, m.current.Status = id, status
	return m.current
}

// Current returns a snapshot of the current job.
func (m *Manager) Current() domain.ExportJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset clears job metadata and returns manager to idle.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.ExportJob{Status: domain.ExportStatusIdle}
}

// IsRunning reports whether the current state is an active stage.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isRunning(m.current.Status)
}

// Cancel moves an active export to cancelled state.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !isRunning(m.current.Status) {
		return ErrNoRunningJob
	}
	m.current.Status = domain.ExportStatusCancelled
	return nil
}

// isRunning checks if a status represents active pipeline execution.
func isRunning(status domain.ExportStatus) bool {
	switch status {
	case domain.ExportStatusPriming, domain.ExportStatusRendering, domain.ExportStatusFinalizing:
		return true
	default:
		return false
	}
}

// isValidTransition enforces the allowed export state machine edges.
func isValidTransition(from, to domain.ExportStatus) bool {
	switch from {
	case domain.ExportStatusIdle:
		return to == domain.ExportStatusPriming
	case domain.ExportStatusPriming:
		return to == domain.ExportStatusRendering || to == domain.ExportStatusErrored || to == domain.ExportStatusCancelled
	case domain.ExportStatusRendering:
		return to == domain.ExportStatusFinalizing || to == domain.ExportStatusErrored || to == domain.ExportStatusCancelled
	case domain.ExportStatusFinalizing:
		return to == domain.ExportStatusDone || to == domain.ExportStatusErrored || to == domain.ExportStatusCancelled
	case domain.ExportStatusDone, domain.ExportStatusErrored, domain.ExportStatusCancelled:
		return to == domain.ExportStatusPriming || to == domain.ExportStatusIdle
	default:
		return false
	}
}
