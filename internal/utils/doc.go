// Package utils provides small helpers shared across Kōwhai: secret name
// normalization, output formatting, and terminal input.
//
// Name normalization happens here, before names reach the protocol packages;
// internal/lock, internal/job and internal/recovery always operate on
// already-normalized names.
package utils
