// Package workflows implements the operations behind each CLI command. Each
// operation takes an Options struct and returns a Result struct, keeping the
// cmd layer free of protocol logic and the protocol packages free of
// terminal concerns.
package workflows
