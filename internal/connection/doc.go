// Package connection implements the per-connection actor pair.
//
// Each accepted WebSocket gets:
//   - a reader goroutine that decodes frames and hands them to the router
//   - a writer goroutine that drains the connection's mailbox onto the socket
//   - a heartbeat goroutine that sends pings, when enabled
//
// The goroutines share nothing but the mailbox and the registry (through the
// router). They run under one errgroup; the first one to stop takes the
// others down, and the connection's nicknames are released afterwards.
package connection
