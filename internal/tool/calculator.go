package tool

import (
	"context"
	"fmt"
	"go/ast"
	"go/constant"
	"go/parser"
	"go/token"
	"strconv"
)

// Calculator is a deterministic local tool (spec §4.7: "Deterministic local
// tools (e.g., calculator): pure functions"), grounded on the teacher's
// functiontool.New pattern for the metadata/execute shape. No example repo
// in the pack carries an arithmetic-expression library, so evaluation folds
// the expression as a Go constant expression via go/parser+go/constant
// (numeric literals, + - * / %, unary +/-, parentheses) instead of a
// hand-rolled tokenizer or an unsandboxed eval of arbitrary Go code.
type Calculator struct{}

func (Calculator) Metadata() Metadata {
	return Metadata{
		Name:        "calculator",
		Description: "Evaluates an arithmetic expression and returns the numeric result.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"expression": map[string]any{"type": "string"}},
			"required":   []string{"expression"},
		},
	}
}

func (Calculator) Execute(ctx context.Context, args map[string]any) (string, error) {
	exprStr, _ := args["expression"].(string)
	if exprStr == "" {
		return "", fmt.Errorf("calculator: missing expression")
	}
	node, err := parser.ParseExpr(exprStr)
	if err != nil {
		return "", fmt.Errorf("calculator: invalid expression: %w", err)
	}
	val, err := evalConstExpr(node)
	if err != nil {
		return "", fmt.Errorf("calculator: %w", err)
	}
	if val.Kind() == constant.Unknown {
		return "", fmt.Errorf("calculator: could not evaluate expression")
	}
	if val.Kind() == constant.Float {
		f, _ := constant.Float64Val(val)
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
	return val.ExactString(), nil
}

// evalConstExpr walks a parsed Go expression tree, rejecting anything that
// is not a numeric literal, parenthesized group, unary +/-, or binary
// arithmetic operator. No identifiers, calls, or indexing are permitted.
func evalConstExpr(node ast.Expr) (constant.Value, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		switch n.Kind {
		case token.INT, token.FLOAT:
			return constant.MakeFromLiteral(n.Value, n.Kind, 0), nil
		default:
			return nil, fmt.Errorf("unsupported literal kind %v", n.Kind)
		}
	case *ast.ParenExpr:
		return evalConstExpr(n.X)
	case *ast.UnaryExpr:
		x, err := evalConstExpr(n.X)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.ADD:
			return x, nil
		case token.SUB:
			return constant.UnaryOp(token.SUB, x, 0), nil
		default:
			return nil, fmt.Errorf("unsupported unary operator %v", n.Op)
		}
	case *ast.BinaryExpr:
		x, err := evalConstExpr(n.X)
		if err != nil {
			return nil, err
		}
		y, err := evalConstExpr(n.Y)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.ADD, token.SUB, token.MUL, token.REM:
			return constant.BinaryOp(x, n.Op, y), nil
		case token.QUO:
			if constant.Sign(y) == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			// Force floating-point division unless both operands are
			// exact integers that divide evenly.
			if x.Kind() == constant.Int && y.Kind() == constant.Int {
				q := constant.BinaryOp(x, token.QUO, y)
				if constant.Compare(constant.BinaryOp(q, token.MUL, y), token.EQL, x) {
					return q, nil
				}
				xf := constant.ToFloat(x)
				yf := constant.ToFloat(y)
				return constant.BinaryOp(xf, token.QUO, yf), nil
			}
			return constant.BinaryOp(x, token.QUO, y), nil
		default:
			return nil, fmt.Errorf("unsupported operator %v", n.Op)
		}
	default:
		return nil, fmt.Errorf("unsupported expression syntax")
	}
}
