// Package router implements command dispatch and the rendezvous handoff.
//
// The router holds no presence state of its own; everything lives in the
// registry. Each connection's reader calls Dispatch for every decoded message
// with its Session, and Release once when the connection ends.
//
//	register{nickname}          -> registry.Register, reply register_success
//	disconnect_user(nickname)   -> registry.Unregister, no reply
//	get_active_users_list(x)    -> registry.List(x), reply active_users_list
//	send_file{recipient,ticket} -> receive_file to recipient, or user_not_found to sender
//
// Events arriving inbound are ignored.
package router
