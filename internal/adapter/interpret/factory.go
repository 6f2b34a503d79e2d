package interpret

import (
	"log/slog"
	"os"
)

const (
	// EnvAgentMode is the environment variable name for mode selection.
	EnvAgentMode = "AGENT_MODE"
	// ModeMock indicates the deterministic mock interpreter should be used.
	ModeMock = "MOCK"
)

// NewInterpreter creates an interpreter based on the AGENT_MODE environment
// variable. AGENT_MODE=MOCK selects the deterministic mock; anything else
// selects the OpenAI-backed implementation.
func NewInterpreter(baseURL, apiKey, model string, logger *slog.Logger) Interpreter {
	if os.Getenv(EnvAgentMode) == ModeMock {
		logger.Info("AGENT_MODE=MOCK detected, using mock interpreter")
		return NewMockInterpreter()
	}
	return NewOpenAIInterpreter(baseURL, apiKey, model, logger)
}
