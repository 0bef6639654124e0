// Package client is the reference client of the relay.
//
// # Overview
//
// A Client owns one WebSocket connection. It performs the Diffie-Hellman
// handshake that protects Register and Login, joins the session to receive
// presence, and exchanges end-to-end encrypted messages with friends. The
// per-friend keys are agreed over the relay with "d" frames: when a friend
// request arrives the client offers its public value, and answers an offer
// it did not start with its own.
//
// # Events
//
// Presence changes, friend requests, key offers and messages are delivered
// on Events. The channel is closed when the connection ends.
//
// # Error Handling
//
// Conditions are exposed as sentinel errors matched with errors.Is:
// ErrUnavailable, ErrUnauthorized, ErrRejected and common.ErrNoPeerKey.
package client
