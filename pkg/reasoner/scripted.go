package reasoner

import (
	"context"
	"errors"
	"sync"
)

// Scripted is a deterministic collaborator for tests: every contract pops
// from a pre-loaded queue. Mirrors llm.ScriptedMockProvider but at the
// contract level, so engine tests do not depend on prompt wording.
type Scripted struct {
	mu sync.Mutex

	Specs      [][]TaskSpec
	Thoughts   []Thought
	Storms     [][]Thought
	Scores     []float64
	Hypotheses []Hypothesis
	Heuristics []string
	Findings   [][]Finding

	Err error
}

func (s *Scripted) Decompose(_ context.Context, _ string) ([]TaskSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Specs) == 0 {
		return nil, errors.New("scripted: no decompositions queued")
	}
	specs := s.Specs[0]
	s.Specs = s.Specs[1:]
	return specs, nil
}

func (s *Scripted) Think(_ context.Context, _ ThinkRequest) (Thought, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return Thought{}, s.Err
	}
	if len(s.Thoughts) == 0 {
		return Thought{}, errors.New("scripted: no thoughts queued")
	}
	thought := s.Thoughts[0]
	s.Thoughts = s.Thoughts[1:]
	return thought, nil
}

func (s *Scripted) Brainstorm(_ context.Context, _ ThinkRequest, width int) ([]Thought, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Storms) == 0 {
		return nil, errors.New("scripted: no brainstorms queued")
	}
	storm := s.Storms[0]
	s.Storms = s.Storms[1:]
	if len(storm) > width {
		storm = storm[:width]
	}
	return storm, nil
}

func (s *Scripted) Score(_ context.Context, _ Thought, _ string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	if len(s.Scores) == 0 {
		return 0, errors.New("scripted: no scores queued")
	}
	score := s.Scores[0]
	s.Scores = s.Scores[1:]
	return score, nil
}

func (s *Scripted) Hypothesize(_ context.Context, _, _, _ string) (Hypothesis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return Hypothesis{}, s.Err
	}
	if len(s.Hypotheses) == 0 {
		return Hypothesis{}, errors.New("scripted: no hypotheses queued")
	}
	hyp := s.Hypotheses[0]
	s.Hypotheses = s.Hypotheses[1:]
	return hyp, nil
}

func (s *Scripted) Synthesize(_ context.Context, _ string, _ []Finding) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	if len(s.Heuristics) == 0 {
		return "", errors.New("scripted: no heuristics queued")
	}
	heuristic := s.Heuristics[0]
	s.Heuristics = s.Heuristics[1:]
	return heuristic, nil
}

// Research implements Researcher so a single Scripted can also stand in for
// the external search collaborator.
func (s *Scripted) Research(_ context.Context, _ string) ([]Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Findings) == 0 {
		return nil, errors.New("scripted: no findings queued")
	}
	findings := s.Findings[0]
	s.Findings = s.Findings[1:]
	return findings, nil
}

var (
	_ Collaborator = (*Scripted)(nil)
	_ Researcher   = (*Scripted)(nil)
)
