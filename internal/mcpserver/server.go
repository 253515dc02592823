package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all AMLGuard tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("amlguard", "0.1.0")
	client := NewClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolGetTransaction, h.HandleGetTransaction)
	s.AddTool(ToolGetComplianceRecord, h.HandleGetComplianceRecord)
	s.AddTool(ToolEvaluateTransaction, h.HandleEvaluateTransaction)
	s.AddTool(ToolIntegrityReport, h.HandleIntegrityReport)
	s.AddTool(ToolCheckTransactionIntegrity, h.HandleCheckTransactionIntegrity)

	return s
}
