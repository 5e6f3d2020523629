// Package config loads, normalizes, and validates autoposter configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// AUTOPOSTER_CONTENT_DIR. The Config type centralizes every knob the watcher,
// dispatcher, and CLI need so the content root, state directory, posting
// slots, and delivery settings are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, a resolved time zone, and clear validation errors.
package config
