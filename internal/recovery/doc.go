// Package recovery runs the full recovery protocol as one state machine:
// acquire the coordination lock, dispatch the remote encryption job against
// a fresh temp ref, await its terminal outcome, retrieve and decrypt the
// committed result, and tear everything down. Cleanup runs on every exit
// path, including cancellation, so no temp refs or lock refs are orphaned.
package recovery
