package core

import (
	"context"
	"sort"
	"sync"
)

// Service owns one Workflow per client and the collaborators they share.
type Service struct {
	deps Collaborators
	cfg  WorkflowConfig

	mu        sync.RWMutex
	workflows map[string]*Workflow
}

// NewService creates a service. deps.Router must be set.
func NewService(deps Collaborators, cfg WorkflowConfig) *Service {
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	return &Service{
		deps:      deps,
		cfg:       cfg,
		workflows: make(map[string]*Workflow),
	}
}

// Workflow returns the workflow of clientID, creating an idle one on first use.
func (s *Service) Workflow(clientID string) *Workflow {
	s.mu.RLock()
	w, ok := s.workflows[clientID]
	s.mu.RUnlock()
	if ok {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workflows[clientID]; ok {
		return w
	}
	w = NewWorkflow(clientID, s.deps, s.cfg)
	s.workflows[clientID] = w
	return w
}

// Lookup returns the workflow of clientID if one exists.
func (s *Service) Lookup(clientID string) (*Workflow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[clientID]
	return w, ok
}

// Discard closes and forgets the workflow of clientID.
func (s *Service) Discard(clientID string) {
	s.mu.Lock()
	w, ok := s.workflows[clientID]
	delete(s.workflows, clientID)
	s.mu.Unlock()

	if ok {
		w.Close()
	}
}

// ActiveWorkflows returns the number of tracked clients.
func (s *Service) ActiveWorkflows() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workflows)
}

// Formats lists the accepted upload formats.
func (s *Service) Formats() []FormatInfo {
	return s.deps.Router.Formats()
}

// ExportFormats lists the available export formats, sorted.
func (s *Service) ExportFormats() []string {
	out := make([]string, 0, len(s.deps.Exporters))
	for _, e := range s.deps.Exporters {
		out = append(out, e.Format())
	}
	sort.Strings(out)
	return out
}

// ConversionStatus reports conversion slot usage.
func (s *Service) ConversionStatus() ConversionLimiterStatus {
	if s.deps.Limiter == nil {
		return ConversionLimiterStatus{}
	}
	return s.deps.Limiter.Status()
}

// WaitForConversions blocks until running conversions finish or ctx is done.
func (s *Service) WaitForConversions(ctx context.Context) error {
	if s.deps.Limiter == nil {
		return nil
	}
	return s.deps.Limiter.WaitForDrain(ctx)
}
