package config

import (
	"strings"

	ferrors "git.home.luguber.info/inful/devserver/internal/foundation/errors"
)

// Validate checks a defaulted configuration.
func Validate(c *Config) error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return ferrors.ValidationError("server.port out of range").
			WithContext("port", c.Server.Port).Build()
	}
	if c.Server.PendingReloadTimeout < 0 {
		return ferrors.ValidationError("server.pending_reload_timeout must not be negative").Build()
	}
	if !strings.HasPrefix(c.Client.PublicPath, "/") {
		return ferrors.ValidationError("client.public_path must start with /").
			WithContext("public_path", c.Client.PublicPath).Build()
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return ferrors.ValidationError("metrics.path must start with /").
			WithContext("path", c.Metrics.Path).Build()
	}
	if err := validateExtensions("modules.js_extensions", c.Modules.JSExtensions); err != nil {
		return err
	}
	if err := validateExtensions("modules.css_extensions", c.Modules.CSSExtensions); err != nil {
		return err
	}
	for tag, attrs := range c.HTML.AssetAttributes {
		if strings.EqualFold(tag, "script") {
			return ferrors.ValidationError("html.asset_attributes must not list script; script sources are always rewritten").Build()
		}
		if len(attrs) == 0 {
			return ferrors.ValidationError("html.asset_attributes entry has no attributes").
				WithContext("tag", tag).Build()
		}
	}
	if c.Optimizer.Debounce < 0 {
		return ferrors.ValidationError("optimizer.debounce must not be negative").Build()
	}
	return nil
}

func validateExtensions(key string, exts []string) error {
	for _, e := range exts {
		if e == "" || strings.ContainsAny(e, "./ ") {
			return ferrors.ValidationError(key+" entries are bare extensions like \"ts\"").
				WithContext("extension", e).Build()
		}
	}
	return nil
}
