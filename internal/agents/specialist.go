package agents

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/llm"
	"github.com/parchmentlabs/parchment/internal/models"
)

// SpecialistKind is the closed set of specialist roles. Dispatch happens
// by switching on the kind, so adding a role without handling it is a
// compile-visible gap instead of a silent registry miss.
type SpecialistKind int

const (
	WritingAgent SpecialistKind = iota
	ReviewingAgent
	StructuralAgent
)

func (k SpecialistKind) String() string {
	switch k {
	case WritingAgent:
		return "writing"
	case ReviewingAgent:
		return "reviewing"
	case StructuralAgent:
		return "structural"
	default:
		return "unknown"
	}
}

// Specialist executes a single instruction in its role.
type Specialist struct {
	kind    SpecialistKind
	llm     llm.Client
	prompts Prompts
	logger  *zap.Logger
}

func NewSpecialist(kind SpecialistKind, client llm.Client, prompts Prompts, logger *zap.Logger) *Specialist {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Specialist{kind: kind, llm: client, prompts: prompts, logger: logger}
}

func (s *Specialist) Kind() SpecialistKind { return s.kind }

// Execute runs the instruction under the specialist's role.
func (s *Specialist) Execute(ctx context.Context, instruction string) (string, error) {
	var system string
	switch s.kind {
	case WritingAgent:
		system = "You are a writing agent. Produce clear, complete prose that follows the instruction exactly."
	case ReviewingAgent:
		system = "You are a reviewing agent. Identify concrete problems. Never rewrite the material you review."
	case StructuralAgent:
		system = "You are a structural agent. Reshape text to match structural and formatting requirements without changing meaning."
	default:
		return "", fmt.Errorf("unknown specialist kind %d", int(s.kind))
	}

	out, err := s.llm.Chat(ctx, []models.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: instruction},
	})
	if err != nil {
		return "", fmt.Errorf("%s agent: %w", s.kind, err)
	}
	return out, nil
}

// Restructure is the structural specialist's entry point: apply a
// formatting instruction to existing text.
func Restructure(ctx context.Context, client llm.Client, prompts Prompts, instruction, text string, logger *zap.Logger) (string, error) {
	s := NewSpecialist(StructuralAgent, client, prompts, logger)
	return s.Execute(ctx, fmt.Sprintf(prompts.Structural, instruction, text))
}
