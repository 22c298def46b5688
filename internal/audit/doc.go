// Package audit keeps an append-only JSONL log of secret operations under
// the project's .kowhai directory. Records carry names and metadata only,
// never secret values.
package audit
