// Package session runs chat exchanges.
//
// A Service validates a chat request and prepares an Exchange. Running the
// exchange appends the user message, optionally lets the model call tools,
// streams the assistant reply and persists the session. Every change is
// written to the caller as a wire frame and published to live observers.
package session
