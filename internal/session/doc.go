// Package session owns the client-side gateway protocol engine.
//
// Ownership boundary:
// - session lifecycle state machine (connect/attach/disconnect)
// - transaction allocation and correlation registry
// - command dispatch over HTTP POST
// - long-poll event loop and envelope routing
// - plugin handle registry and two-phase messaging
//
// One Session owns one long-poll connection and one transaction registry.
// Any number of commands may be pending concurrently; their asynchronous
// completions all fan in through the single poll channel.
package session
