// Package notifications delivers crowd alerts via ntfy.
//
// The ntfy topic comes from the [notifications] section of config.toml. When
// no topic is configured NewService returns a no-op implementation so callers
// never need to branch on whether alerts are enabled. Only runs whose density
// reaches the configured min_density produce a crowd alert.
package notifications
