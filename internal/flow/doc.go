// Package flow implements the conversation state machine that turns
// inbound chat messages into catalog browsing, order confirmation and
// order-thread conversations.
//
// One Engine consumes the session's inbound channel. Each message is
// handled under the conversation's registry lock, so transitions for one
// customer are serialized while different customers proceed in parallel.
// A handler panic is contained to the message that caused it.
package flow
