package eino

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rpg-narrative-api/internal/domain/service"
	"rpg-narrative-api/pkg/logger"
	"rpg-narrative-api/pkg/metrics"
)

var tracer = otel.Tracer("eino")

// callState OnStart 写入，OnEnd/OnError 读取
type callState struct {
	started time.Time
	call    service.LLMCall
	model   string
}

type callStateKey struct{}

func stateFrom(ctx context.Context) callState {
	st, ok := ctx.Value(callStateKey{}).(callState)
	if !ok {
		return callState{call: service.LLMCallFrom(ctx)}
	}
	return st
}

// finish 结束 span 并记录调用次数与耗时，返回本次耗时
func (st callState) finish(ctx context.Context, status, modelName string) time.Duration {
	if modelName == "" {
		modelName = st.model
	}
	var elapsed time.Duration
	if !st.started.IsZero() {
		elapsed = time.Since(st.started)
		metrics.LLMCallDuration.WithLabelValues(st.call.Workflow, st.call.Provider, modelName).Observe(elapsed.Seconds())
	}
	metrics.LLMCallTotal.WithLabelValues(st.call.Workflow, st.call.Provider, modelName, status).Inc()
	trace.SpanFromContext(ctx).End()
	return elapsed
}

// newChatModelCallbackHandler usage 可为空；为空时只上报指标与追踪
func newChatModelCallbackHandler(usage service.LLMUsageRecorder) *cbtemplate.ModelCallbackHandler {
	return &cbtemplate.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, in *model.CallbackInput) context.Context {
			st := callState{started: time.Now(), call: service.LLMCallFrom(ctx)}
			if in != nil && in.Config != nil {
				st.model = in.Config.Model
			}

			attrs := []attribute.KeyValue{
				attribute.String("eino.workflow", st.call.Workflow),
				attribute.String("llm.provider", st.call.Provider),
				attribute.String("llm.model", st.model),
			}
			if st.call.CampaignID != "" {
				attrs = append(attrs, attribute.String("campaign.id", st.call.CampaignID))
			}
			if info != nil {
				attrs = append(attrs, attribute.String("eino.node_name", info.Name))
			}
			ctx, _ = tracer.Start(ctx, "llm.generate", trace.WithAttributes(attrs...))
			return context.WithValue(ctx, callStateKey{}, st)
		},

		OnEnd: func(ctx context.Context, _ *einocb.RunInfo, out *model.CallbackOutput) context.Context {
			st := stateFrom(ctx)
			var modelName string
			if out != nil && out.Config != nil {
				modelName = out.Config.Model
			}
			if modelName == "" {
				modelName = st.model
			}

			if out != nil && out.TokenUsage != nil {
				u := out.TokenUsage
				trace.SpanFromContext(ctx).SetAttributes(
					attribute.Int("llm.prompt_tokens", u.PromptTokens),
					attribute.Int("llm.completion_tokens", u.CompletionTokens),
				)
				metrics.LLMTokensUsed.WithLabelValues(st.call.Workflow, st.call.Provider, modelName, "prompt").Add(float64(u.PromptTokens))
				metrics.LLMTokensUsed.WithLabelValues(st.call.Workflow, st.call.Provider, modelName, "completion").Add(float64(u.CompletionTokens))
			}

			elapsed := st.finish(ctx, "success", modelName)

			if usage == nil || out == nil || out.TokenUsage == nil {
				return ctx
			}
			err := usage.Record(ctx, service.LLMUsageInput{
				CampaignID:       st.call.CampaignID,
				Workflow:         st.call.Workflow,
				Provider:         st.call.Provider,
				Model:            modelName,
				PromptTokens:     out.TokenUsage.PromptTokens,
				CompletionTokens: out.TokenUsage.CompletionTokens,
				DurationMs:       int(elapsed.Milliseconds()),
			})
			if err != nil {
				logger.Warn(ctx, "failed to record llm usage", "error", err.Error())
			}
			return ctx
		},

		OnError: func(ctx context.Context, _ *einocb.RunInfo, err error) context.Context {
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			stateFrom(ctx).finish(ctx, "error", "")
			return ctx
		},
	}
}
