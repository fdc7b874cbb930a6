// Package protocol defines the relay's wire messages and their JSON codec.
//
// Every frame is an adjacently tagged object:
//
//	{"type":"send_file","payload":{"recipient":"bob","ticket":"..."}}
//
// The type tag is the snake_case variant name. Unit variants omit payload.
//
// Messages are split in two sets:
//   - Commands travel client -> server and drive the router.
//   - Events travel server -> client and are informational only.
//
// The codec decodes both sets so the same package serves the relay and its
// clients; the relay refuses to dispatch an Event and refuses to write a
// Command.
package protocol
