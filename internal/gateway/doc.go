// ABOUTME: Package gateway is the composition root for the chat-gateway server
// ABOUTME: Builds the component graph from config and runs it to completion

// Package gateway assembles the server from configuration: SQLite
// store, topic broker, notification dispatcher, conversation service,
// websocket handlers, and the HTTP API, all behind one gorilla/mux
// router. Run blocks until the context is canceled, then shuts the
// stack down in reverse order.
package gateway
