// Package cli provides the interactive relay client.
//
// The REPL reads commands from the input, prints pushed events (presence
// changes, friend requests, messages) as they arrive, and keeps a small
// view of which friends are online. App.Run blocks until the user exits or
// the connection ends.
package cli
