// Package mcp exposes a permit ledger as Model Context Protocol tools.
//
// # Server Usage
//
// Register the ledger tools on a new MCP server and serve it over SSE:
//
//	import (
//	    "github.com/x402-foundation/permitledger"
//	    "github.com/x402-foundation/permitledger/mcp"
//	)
//
//	backend := permitledger.NewLocalBackend(ledger)
//	server := mcp.NewServer(backend, mcp.WithRelay(relayer))
//	http.Handle("/mcp", mcp.SSEHandler(server))
//
// # Client Usage
//
// Wrap a connected session from the official SDK to call the tools with
// typed arguments:
//
//	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "my-agent", Version: "1.0.0"}, nil)
//	session, _ := mcpClient.Connect(ctx, transport, nil)
//
//	client := mcp.NewClient(session)
//	balance, err := client.BalanceOf(ctx, owner)
//
// Failed tool calls come back with IsError set and a JSON error body. The
// client decodes that body into *permitledger.LedgerError (or
// *permitledger.RelayError for relay failures) so callers can match on the
// ledger sentinels with errors.Is.
package mcp
