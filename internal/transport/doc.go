// Package transport implements the chat gateway client.
//
// The gateway is consumed as an opaque black box: a single WebSocket
// connection carrying JSON envelopes for inbound customer messages,
// identity confirmation, credential updates, and send acknowledgments.
// The cryptographic handshake happens behind the gateway; this client
// only authenticates with a bearer token.
package transport
