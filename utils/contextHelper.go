package utils

import (
	"context"

	"github.com/mmdatafocus/boleto_notifier/appctx"
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, appctx.ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyCorrelationId, correlationId)
}

func GetTriggerFromContext(ctx context.Context) string {
	v, ok := appctx.GetString(ctx, appctx.ContextKeyTrigger)
	if !ok || v == "" {
		return "api"
	}
	return v
}

func SetTriggerInContext(ctx context.Context, trigger string) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyTrigger, trigger)
}
