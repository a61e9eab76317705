package tenant

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultControlDatabaseID is used when neither configuration nor the control URL names the control database
const DefaultControlDatabaseID = "control"

// BuildDSN returns base with its database path replaced by databaseID.
// Credentials, host and query parameters are kept, so every tenant database
// lives on the same server as the control database.
func BuildDSN(base, databaseID string) (string, error) {
	if databaseID == "" {
		return "", ErrEmptyDatabaseID
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base connection url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base connection url %q has no scheme or host", u.Redacted())
	}
	u.Path = "/" + databaseID
	u.RawPath = ""
	return u.String(), nil
}

// ControlDatabaseID returns the control database id: the configured name,
// else the database named in the control connection url, else "control".
func ControlDatabaseID(configured, controlURL string) string {
	if name := strings.TrimSpace(configured); name != "" {
		return name
	}
	if u, err := url.Parse(controlURL); err == nil {
		if name := strings.Trim(u.Path, "/"); name != "" {
			return name
		}
	}
	return DefaultControlDatabaseID
}
