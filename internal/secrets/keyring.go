// Package secrets keeps credentials in the operating system's keyring
// (Secret Service on Linux, Keychain on macOS, Credential Manager on
// Windows) so they need not sit in config.json.
package secrets

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zalando/go-keyring"
)

// Service is the keyring service name every entry is stored under.
const Service = "mirrorhub"

// Names of the credentials the hub looks up.
const (
	GeminiAPIKey = "gemini_api_key"
	OpenAIAPIKey = "openai_api_key"
	NotionAPIKey = "notion_api_key"
	GatewayToken = "gateway_token"
	RedisPass    = "redis_password"
)

var known = map[string]string{
	GeminiAPIKey: "Gemini API key",
	OpenAIAPIKey: "OpenAI API key",
	NotionAPIKey: "Notion integration token",
	GatewayToken: "Gateway bearer token",
	RedisPass:    "Redis password",
}

// ErrNotFound is returned when the keyring has no entry for a name.
var ErrNotFound = errors.New("secret not found")

// ErrUnknownName is returned for names the hub never reads.
var ErrUnknownName = errors.New("unknown secret name")

// Names lists the credential names in a stable order.
func Names() []string {
	out := make([]string, 0, len(known))
	for name := range known {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Describe returns a human label for name.
func Describe(name string) string {
	return known[name]
}

func check(name string) error {
	if _, ok := known[name]; !ok {
		return fmt.Errorf("%w: %q (want one of %s)", ErrUnknownName, name, strings.Join(Names(), ", "))
	}
	return nil
}

// Get reads name from the keyring.
func Get(name string) (string, error) {
	if err := check(name); err != nil {
		return "", err
	}
	v, err := keyring.Get(Service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keyring get %s: %w", name, err)
	}
	return v, nil
}

// Set stores value under name, replacing any previous entry.
func Set(name, value string) error {
	if err := check(name); err != nil {
		return err
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("refusing to store an empty %s", name)
	}
	if err := keyring.Set(Service, name, value); err != nil {
		return fmt.Errorf("keyring set %s: %w", name, err)
	}
	return nil
}

// Delete removes name. Deleting a missing entry is not an error.
func Delete(name string) error {
	if err := check(name); err != nil {
		return err
	}
	if err := keyring.Delete(Service, name); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete %s: %w", name, err)
	}
	return nil
}

// Fill sets *dst from the keyring when it is empty. Keyring failures leave
// dst untouched; it reports whether a value was loaded.
func Fill(dst *string, name string) bool {
	if strings.TrimSpace(*dst) != "" {
		return false
	}
	v, err := Get(name)
	if err != nil || v == "" {
		return false
	}
	*dst = v
	return true
}
