package afectx

import "context"

type ctxIndex int

const (
	ctxIndexVerbose ctxIndex = iota
	ctxIndexDevice
)

// IsVerbose reports whether wire level dumps were requested for this call chain.
func IsVerbose(ctx context.Context) bool {
	val, ok := ctx.Value(ctxIndexVerbose).(bool)
	return ok && val
}

func SetVerbose(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, ctxIndexVerbose, value)
}

// WithDevice tags the context with the name of the device issuing bus
// transactions so transport diagnostics can attribute them.
func WithDevice(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxIndexDevice, name)
}

func Device(ctx context.Context) string {
	val, _ := ctx.Value(ctxIndexDevice).(string)
	return val
}
