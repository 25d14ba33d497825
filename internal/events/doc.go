// Package events streams step state transitions of running builds to
// sinks: the structured log, an in-memory recorder and a socket.io server.
package events
