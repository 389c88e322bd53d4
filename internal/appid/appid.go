package appid

import (
	"context"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"

	appidentityassets "github.com/docgate/docgate/internal/assets/appidentity"
)

const fallbackName = "docgate"

func init() {
	// Explicit identity overrides (FULMEN_APP_IDENTITY_PATH or a discovered
	// `.fulmen/app.yaml`) stay authoritative; the embedded copy keeps
	// standalone binaries working.
	_ = appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML)
}

func Get(ctx context.Context) (*appidentity.Identity, error) {
	return appidentity.Get(ctx)
}

// BinaryName returns the identity's binary name, or "docgate" when the
// identity cannot be loaded.
func BinaryName(ctx context.Context) string {
	identity, err := Get(ctx)
	if err != nil || identity == nil || strings.TrimSpace(identity.BinaryName) == "" {
		return fallbackName
	}
	return identity.BinaryName
}

// EnvPrefix returns the identity's env prefix with a trailing underscore.
func EnvPrefix(ctx context.Context) string {
	identity, err := Get(ctx)
	if err != nil || identity == nil || strings.TrimSpace(identity.EnvPrefix) == "" {
		return strings.ToUpper(fallbackName) + "_"
	}
	prefix := identity.EnvPrefix
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}
