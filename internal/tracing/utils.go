package tracing

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"

	"github.com/imsportal/filingstack/internal/logger"
	"github.com/imsportal/filingstack/internal/utils"
)

const (
	SpanTagInstance  = "instance"
	SpanTagMailbox   = "mailbox"
	SpanTagRequestId = "request-id"
	SpanTagAppSource = "app-source"
	SpanTagEntityId  = "entity-id"
	SpanTagComponent = "component"
)

const (
	SpanTagComponentPostgresRepository = "postgresRepository"
	SpanTagComponentRest               = "rest"
	SpanTagComponentCronJob            = "cronJob"
	SpanTagComponentService            = "service"
	SpanTagComponentExternalAPI        = "externalApi"
)

func StartHttpServerTracerSpanWithHeader(ctx context.Context, operationName string, headers http.Header) (context.Context, opentracing.Span) {
	spanCtx, err := opentracing.GlobalTracer().Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(headers))
	if err != nil {
		serverSpan := opentracing.GlobalTracer().StartSpan(operationName)
		opentracing.GlobalTracer().Inject(serverSpan.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(headers))
		return opentracing.ContextWithSpan(ctx, serverSpan), serverSpan
	}

	serverSpan := opentracing.GlobalTracer().StartSpan(operationName, ext.RPCServerOption(spanCtx))
	return opentracing.ContextWithSpan(ctx, serverSpan), serverSpan
}

func StartTracerSpan(ctx context.Context, operationName string) (opentracing.Span, context.Context) {
	serverSpan := opentracing.GlobalTracer().StartSpan(operationName)
	return serverSpan, opentracing.ContextWithSpan(ctx, serverSpan)
}

func InjectSpanContextIntoHTTPRequest(req *http.Request, span opentracing.Span) *http.Request {
	if span != nil {
		// Prepare to inject span context into HTTP headers
		tracer := span.Tracer()
		textMapCarrier := opentracing.HTTPHeadersCarrier(req.Header)

		// Inject the span context into the HTTP headers
		err := tracer.Inject(span.Context(), opentracing.HTTPHeaders, textMapCarrier)
		if err != nil {
			span.LogFields(log.String("inject.error", err.Error()))
		}
	}
	return req
}

func setDefaultSpanTags(ctx context.Context, span opentracing.Span) {
	instance := utils.GetInstanceFromContext(ctx)
	mailbox := utils.GetMailboxFromContext(ctx)
	requestId := utils.GetRequestIdFromContext(ctx)
	appSource := utils.GetAppSourceFromContext(ctx)
	if instance != "" {
		span.SetTag(SpanTagInstance, instance)
	}
	if mailbox != "" {
		span.SetTag(SpanTagMailbox, mailbox)
	}
	if requestId != "" {
		span.SetTag(SpanTagRequestId, requestId)
	}
	if appSource != "" {
		span.SetTag(SpanTagAppSource, appSource)
	}
}

func SetDefaultRestSpanTags(ctx context.Context, span opentracing.Span) {
	setDefaultSpanTags(ctx, span)
	TagComponentRest(span)
}

func SetDefaultExternalAPISpanTags(ctx context.Context, span opentracing.Span) {
	setDefaultSpanTags(ctx, span)
	TagComponentExternalAPI(span)
}

func SetDefaultServiceSpanTags(ctx context.Context, span opentracing.Span) {
	setDefaultSpanTags(ctx, span)
	TagComponentService(span)
}

func TraceErr(span opentracing.Span, err error, fields ...log.Field) {
	if span == nil || err == nil {
		return
	}
	// Log the error with the fields
	ext.LogError(span, err, fields...)
}

func LogObjectAsJson(span opentracing.Span, name string, object any) {
	if object == nil {
		span.LogFields(log.String(name, "nil"))
		return
	}
	jsonObject, err := json.Marshal(object)
	if err == nil {
		span.LogFields(log.String(name, string(jsonObject)))
	} else {
		span.LogFields(log.Object(name, object))
	}
}

func InjectTextMapCarrier(spanCtx opentracing.SpanContext) (opentracing.TextMapCarrier, error) {
	m := make(opentracing.TextMapCarrier)
	if err := opentracing.GlobalTracer().Inject(spanCtx, opentracing.TextMap, m); err != nil {
		return nil, err
	}
	return m, nil
}

func ExtractTextMapCarrier(spanCtx opentracing.SpanContext) opentracing.TextMapCarrier {
	textMapCarrier, err := InjectTextMapCarrier(spanCtx)
	if err != nil {
		return make(opentracing.TextMapCarrier)
	}
	return textMapCarrier
}

func TagComponentPostgresRepository(span opentracing.Span) {
	span.SetTag(SpanTagComponent, SpanTagComponentPostgresRepository)
}

func TagInstance(span opentracing.Span, instanceId string) {
	if instanceId != "" {
		span.SetTag(SpanTagInstance, instanceId)
	}
}

func TagMailbox(span opentracing.Span, mailbox string) {
	if mailbox != "" {
		span.SetTag(SpanTagMailbox, mailbox)
	}
}

func TagEntity(span opentracing.Span, entityId string) {
	if entityId != "" {
		span.SetTag(SpanTagEntityId, entityId)
	}
}

func TagComponentCronJob(span opentracing.Span) {
	span.SetTag(SpanTagComponent, SpanTagComponentCronJob)
}

func TagComponentRest(span opentracing.Span) {
	span.SetTag(SpanTagComponent, SpanTagComponentRest)
}

func TagComponentExternalAPI(span opentracing.Span) {
	span.SetTag(SpanTagComponent, SpanTagComponentExternalAPI)
}

func TagComponentService(span opentracing.Span) {
	span.SetTag(SpanTagComponent, SpanTagComponentService)
}

func RecoveryWithJaeger(tracer opentracing.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				// Log the panic to Jaeger
				span := tracer.StartSpan("panic-recovery")
				defer span.Finish()

				buf := make([]byte, 4096)
				stackSize := runtime.Stack(buf, false)
				span.LogKV(
					"event", "error",
					"error.object", r,
					"stack", string(buf[:stackSize]),
				)
				span.SetTag("error", true)
			}
		}()
		c.Next()
	}
}

func RecoverAndLogToJaeger(appLogger logger.Logger) {
	if r := recover(); r != nil {
		tracer := opentracing.GlobalTracer()
		span := tracer.StartSpan("panic-recovery")
		defer span.Finish()

		stackTrace := string(debug.Stack())
		span.LogKV(
			"event", "error",
			"error.object", r,
			"stack", stackTrace,
		)
		span.SetTag("error", true)

		appLogger.Errorf("Recovered from panic: %v\nStack trace:\n%s", r, stackTrace)
	}
}
