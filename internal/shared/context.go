package shared

import "context"

type operatorContextKey struct{}

// ContextWithOperator stores the acting operator's identifier in context.
// Session handling lives outside this service; the operator arrives as an
// explicit header and is threaded through every mutating call.
func ContextWithOperator(ctx context.Context, operatorID string) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, operatorID)
}

// OperatorFromContext extracts the operator identifier, empty when absent.
func OperatorFromContext(ctx context.Context) string {
	operatorID, _ := ctx.Value(operatorContextKey{}).(string)
	return operatorID
}
