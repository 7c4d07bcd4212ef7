package client

import (
	"os"

	"github.com/sxhxliang/agentx-proxy/internal/config"
)

// homeDirFor resolves the directory the per-kind transcript homes
// (.claude/.codex/.gemini) are rooted at. cfg carries no override today;
// the indirection exists so a future --home-dir flag doesn't change this
// call site.
func homeDirFor(cfg config.ClientConfig) (string, error) {
	return os.UserHomeDir()
}
