package utils

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

type CustomContext struct {
	AppSource  string
	InstanceID string
	Mailbox    string
	RequestID  string
}

type customContextKeyType string

const customContextKey customContextKeyType = "CUSTOM_CONTEXT"

func WithCustomContext(ctx context.Context, customContext *CustomContext) context.Context {
	return context.WithValue(ctx, customContextKey, customContext)
}

func WithCustomContextFromGinRequest(c *gin.Context, appSource string) context.Context {
	customContext := &CustomContext{
		AppSource: appSource,
		RequestID: c.GetHeader("X-Request-Id"),
	}
	// only instance routes carry the instance id in :id
	if strings.Contains(c.FullPath(), "/instances/:id") {
		customContext.InstanceID = c.Param("id")
	}
	return WithCustomContext(c.Request.Context(), customContext)
}

func GetContext(ctx context.Context) *CustomContext {
	customContext, ok := ctx.Value(customContextKey).(*CustomContext)
	if !ok {
		return new(CustomContext)
	}
	return customContext
}

func GetAppSourceFromContext(ctx context.Context) string {
	return GetContext(ctx).AppSource
}

func GetInstanceFromContext(ctx context.Context) string {
	return GetContext(ctx).InstanceID
}

func GetMailboxFromContext(ctx context.Context) string {
	return GetContext(ctx).Mailbox
}

func GetRequestIdFromContext(ctx context.Context) string {
	return GetContext(ctx).RequestID
}

// SetInstanceInContext copies the custom context so sibling goroutines keep
// their own instance.
func SetInstanceInContext(ctx context.Context, instanceID string) context.Context {
	customContext := *GetContext(ctx)
	customContext.InstanceID = instanceID
	return WithCustomContext(ctx, &customContext)
}

func SetMailboxInContext(ctx context.Context, mailbox string) context.Context {
	customContext := *GetContext(ctx)
	customContext.Mailbox = mailbox
	return WithCustomContext(ctx, &customContext)
}
