package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// EnvFileCandidates lists env files in load order.
func EnvFileCandidates() []string {
	candidates := make([]string, 0, 4)
	if explicit := strings.TrimSpace(os.Getenv("MIRRORHUB_ENV_FILE")); explicit != "" {
		candidates = append(candidates, expandHome(explicit))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "mirrorhub", "env"),
			filepath.Join(home, ".mirrorhub", "env"),
		)
	}
	candidates = append(candidates, ".env")
	return candidates
}

// LoadEnvFileCandidates loads environment variables from known files.
// Existing process env vars are never overridden.
func LoadEnvFileCandidates() {
	seen := map[string]struct{}{}
	for _, p := range EnvFileCandidates() {
		abs := p
		if resolved, err := filepath.Abs(p); err == nil {
			abs = resolved
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		// godotenv.Load keeps variables that are already set.
		_ = godotenv.Load(abs)
	}
}
