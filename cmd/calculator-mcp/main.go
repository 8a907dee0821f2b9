// Command calculator-mcp runs the calculator MCP server over stdio.
// Point a "mcp" config entry at this binary to give the chat session
// arithmetic tools.
package main

import (
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/kozo2/Hatchling/pkg/mcpserver/calculator"
)

func main() {
	s := calculator.NewServer()
	if err := server.ServeStdio(s); err != nil {
		log.Fatal(err)
	}
}
