// Package configs manages Kōwhai configuration files.
//
// Two TOML files are involved: the per-user config (identity UUID) under the
// OS config directory, and the per-project config (.kowhai/config.toml)
// holding the remote repository coordinates and recovery protocol tuning.
// Project discovery walks up from the working directory looking for a
// .kowhai directory, the same way git finds its repository root.
package configs
