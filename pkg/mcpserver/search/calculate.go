package search

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
)

var calculateTool = mcp.NewTool("calculate",
	mcp.WithDescription("Applies an operation (sum, product, min, max, mean) to an array of numbers"),
	mcp.WithString("operation",
		mcp.Required(),
		mcp.Description("Operation to apply"),
		mcp.Enum("sum", "product", "min", "max", "mean"),
	),
	mcp.WithArray("numbers",
		mcp.Required(),
		mcp.Description("Array of numbers"),
		mcp.Items(map[string]any{
			"type": "number",
		}),
	),
)

func calculate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	op, _ := args["operation"].(string)
	numbersArg, ok := args["numbers"]
	if !ok {
		return mcp.NewToolResultError("numbers argument is required"), nil
	}

	numbers, err := toFloat64Slice(numbersArg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid numbers: %v", err)), nil
	}

	result, err := apply(op, numbers)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatFloat(result)), nil
}

func apply(op string, numbers []float64) (float64, error) {
	switch op {
	case "sum":
		var sum float64
		for _, n := range numbers {
			sum += n
		}
		return sum, nil
	case "product":
		product := 1.0
		for _, n := range numbers {
			product *= n
		}
		return product, nil
	case "min", "max", "mean":
		if len(numbers) == 0 {
			return 0, fmt.Errorf("%s of an empty array", op)
		}
	default:
		return 0, fmt.Errorf("unknown operation %q", op)
	}

	switch op {
	case "min":
		m := math.Inf(1)
		for _, n := range numbers {
			m = math.Min(m, n)
		}
		return m, nil
	case "max":
		m := math.Inf(-1)
		for _, n := range numbers {
			m = math.Max(m, n)
		}
		return m, nil
	default:
		var sum float64
		for _, n := range numbers {
			sum += n
		}
		return sum / float64(len(numbers)), nil
	}
}

func toFloat64Slice(v any) ([]float64, error) {
	switch arr := v.(type) {
	case []any:
		result := make([]float64, len(arr))
		for i, elem := range arr {
			switch n := elem.(type) {
			case float64:
				result[i] = n
			case int:
				result[i] = float64(n)
			case int64:
				result[i] = float64(n)
			default:
				return nil, fmt.Errorf("element %d is not a number: %T", i, elem)
			}
		}
		return result, nil
	case []float64:
		return arr, nil
	default:
		return nil, fmt.Errorf("expected array, got %T", v)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
