// Package calculator provides an MCP server with arithmetic tools. It is
// the reference tool server for exercising tool-call chaining: divide
// returns a tool error on zero divisors.
package calculator

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server with calculator tools.
func NewServer() *server.MCPServer {
	s := server.NewMCPServer(
		"calculator",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.AddTool(mcp.NewTool("add",
		mcp.WithDescription("Adds two numbers"),
		mcp.WithNumber("a", mcp.Required(), mcp.Description("First operand")),
		mcp.WithNumber("b", mcp.Required(), mcp.Description("Second operand")),
	), binaryHandler(func(a, b float64) (float64, error) { return a + b, nil }))

	s.AddTool(mcp.NewTool("subtract",
		mcp.WithDescription("Subtracts the second number from the first"),
		mcp.WithNumber("a", mcp.Required(), mcp.Description("First operand")),
		mcp.WithNumber("b", mcp.Required(), mcp.Description("Second operand")),
	), binaryHandler(func(a, b float64) (float64, error) { return a - b, nil }))

	s.AddTool(mcp.NewTool("multiply",
		mcp.WithDescription("Multiplies two numbers"),
		mcp.WithNumber("a", mcp.Required(), mcp.Description("First operand")),
		mcp.WithNumber("b", mcp.Required(), mcp.Description("Second operand")),
	), binaryHandler(func(a, b float64) (float64, error) { return a * b, nil }))

	s.AddTool(mcp.NewTool("divide",
		mcp.WithDescription("Divides the first number by the second"),
		mcp.WithNumber("a", mcp.Required(), mcp.Description("Dividend")),
		mcp.WithNumber("b", mcp.Required(), mcp.Description("Divisor")),
	), binaryHandler(func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return a / b, nil
	}))

	s.AddTool(mcp.NewTool("sum",
		mcp.WithDescription("Calculates the sum of an array of numbers"),
		mcp.WithArray("numbers",
			mcp.Required(),
			mcp.Description("Array of numbers to sum"),
			mcp.Items(map[string]any{
				"type": "number",
			}),
		),
	), sumHandler)

	return s
}

// binaryHandler adapts a two-operand function into a tool handler.
func binaryHandler(op func(a, b float64) (float64, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		a, err := toFloat64(args["a"])
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid a: %v", err)), nil
		}
		b, err := toFloat64(args["b"])
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid b: %v", err)), nil
		}

		result, err := op(a, b)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatFloat(result)), nil
	}
}

// sumHandler handles the sum tool call.
func sumHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	numbersArg, ok := args["numbers"]
	if !ok {
		return mcp.NewToolResultError("numbers argument is required"), nil
	}

	numbers, err := toFloat64Slice(numbersArg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid numbers: %v", err)), nil
	}

	var sum float64
	for _, n := range numbers {
		sum += n
	}

	return mcp.NewToolResultText(formatFloat(sum)), nil
}

// toFloat64 converts a JSON-decoded argument to float64.
func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

// toFloat64Slice converts an interface{} to []float64.
func toFloat64Slice(v any) ([]float64, error) {
	switch arr := v.(type) {
	case []any:
		result := make([]float64, len(arr))
		for i, elem := range arr {
			n, err := toFloat64(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			result[i] = n
		}
		return result, nil
	case []float64:
		return arr, nil
	case []int:
		result := make([]float64, len(arr))
		for i, n := range arr {
			result[i] = float64(n)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("expected array, got %T", v)
	}
}

// formatFloat formats a float64 as a string, removing trailing zeros.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
