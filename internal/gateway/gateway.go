// Package gateway is the single entry point for tool invocations. Every transport calls
// Invoke, which rate limits and validates before the handler runs and masks its result after.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/benvon/crm-tools/internal/database"
	"github.com/benvon/crm-tools/internal/logger"
	"github.com/benvon/crm-tools/internal/request"
	"github.com/benvon/crm-tools/internal/security"
	"github.com/benvon/crm-tools/internal/telemetry"
	"github.com/benvon/crm-tools/internal/tools"
)

// DefaultTimeout bounds a single handler call.
const DefaultTimeout = 15 * time.Second

// Gateway wraps a tool registry with per-client limits and argument checks.
type Gateway struct {
	registry *tools.Registry
	limiter  security.Limiter
	logger   *zap.Logger
	env      *tools.Env
	timeout  time.Duration
	now      func() time.Time
	schemas  map[string]*jsonschema.Schema
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTimeout sets the per-call handler timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMaxRows sets the upper bound for limit arguments.
func WithMaxRows(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.env.MaxRows = n
		}
	}
}

// WithClock overrides the time source used for rate limiting and handlers.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
			g.env.Now = now
		}
	}
}

// New builds a gateway over registry and compiles every tool's input schema.
func New(registry *tools.Registry, limiter security.Limiter, db database.Querier, log *zap.Logger, opts ...Option) (*Gateway, error) {
	if registry == nil {
		return nil, errors.New("gateway: registry is required")
	}
	if limiter == nil {
		return nil, errors.New("gateway: limiter is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	g := &Gateway{
		registry: registry,
		limiter:  limiter,
		logger:   log,
		env:      &tools.Env{DB: db, MaxRows: security.DefaultMaxQueryRows},
		timeout:  DefaultTimeout,
		now:      func() time.Time { return time.Now().UTC() },
		schemas:  make(map[string]*jsonschema.Schema, registry.Len()),
	}
	for _, opt := range opts {
		opt(g)
	}

	compiler := jsonschema.NewCompiler()
	for _, t := range registry.List() {
		doc, err := schemaDocument(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("gateway: schema for %s: %w", t.Name, err)
		}
		url := t.Name + ".json"
		if err := compiler.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("gateway: schema for %s: %w", t.Name, err)
		}
		sch, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("gateway: compile schema for %s: %w", t.Name, err)
		}
		g.schemas[t.Name] = sch
	}
	return g, nil
}

// schemaDocument converts a Go schema literal into the decoded-JSON form the compiler expects.
// A tool without a schema accepts any object.
func schemaDocument(schema map[string]any) (any, error) {
	if len(schema) == 0 {
		schema = map[string]any{"type": "object"}
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

// Tools returns the registered tools sorted by name.
func (g *Gateway) Tools() []*tools.Tool {
	return g.registry.List()
}

// Tool looks up a single tool.
func (g *Gateway) Tool(name string) (*tools.Tool, bool) {
	return g.registry.Get(name)
}

// Invoke runs the named tool for clientKey with JSON-encoded arguments.
func (g *Gateway) Invoke(ctx context.Context, clientKey, name string, rawArgs json.RawMessage) (*tools.Result, error) {
	requestID := request.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	start := g.now()
	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("tool", logger.SanitizeToolName(name)),
		zap.String("client", logger.SanitizeClientKey(clientKey)),
	}

	if !g.limiter.Allow(clientKey, start) {
		g.logger.Warn("tool_rate_limited", fields...)
		return nil, fmt.Errorf("client %s: %w", clientKey, security.ErrRateLimitExceeded)
	}

	tool, ok := g.registry.Get(name)
	if !ok {
		g.logger.Warn("tool_unknown", fields...)
		return nil, fmt.Errorf("%s: %w", name, tools.ErrUnknownTool)
	}

	args, err := g.prepare(tool, rawArgs)
	if err != nil {
		g.logFailure(fields, start, err)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	ctx, span := telemetry.StartToolSpan(ctx, tool.Name, requestID)

	out, err := tool.Handler(ctx, g.env, args)
	telemetry.EndToolSpan(span, err)
	if err != nil {
		g.logFailure(fields, start, err)
		return nil, fmt.Errorf("tool %s: %w", tool.Name, err)
	}

	masked, err := maskResult(out)
	if err != nil {
		g.logFailure(fields, start, err)
		return nil, err
	}
	result, err := tools.TextResult(masked)
	if err != nil {
		g.logFailure(fields, start, err)
		return nil, err
	}

	g.logger.Info("tool_invoked", append(fields, zap.Duration("duration", g.now().Sub(start)))...)
	return result, nil
}

// RetryAfter reports how long clientKey must wait before its window resets. It returns
// zero when the limiter does not expose its ledger or the key is not limited.
func (g *Gateway) RetryAfter(clientKey string) time.Duration {
	ledger, ok := g.limiter.(interface {
		Entry(key string) (security.RateLimitEntry, bool)
	})
	if !ok {
		return 0
	}
	entry, ok := ledger.Entry(clientKey)
	if !ok {
		return 0
	}
	if d := entry.ResetTime.Sub(g.now()); d > 0 {
		return d
	}
	return 0
}

func (g *Gateway) logFailure(fields []zap.Field, start time.Time, err error) {
	level := g.logger.Error
	if isClientError(err) {
		level = g.logger.Warn
	}
	level("tool_failed", append(fields,
		zap.Duration("duration", g.now().Sub(start)),
		zap.String("error", logger.SanitizeError(err)),
	)...)
}

// prepare decodes, schema-checks, and normalises the arguments.
func (g *Gateway) prepare(tool *tools.Tool, raw json.RawMessage) (tools.Args, error) {
	args := tools.Args{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &args); err != nil {
			return nil, &security.ValidationError{Field: "arguments", Reason: "must be a JSON object"}
		}
		if args == nil {
			args = tools.Args{}
		}
	}

	if sch, ok := g.schemas[tool.Name]; ok {
		if err := sch.Validate(map[string]any(args)); err != nil {
			return nil, &security.ValidationError{Field: "arguments", Reason: schemaReason(err)}
		}
	}
	if err := normalize(tool, args, g.env.MaxRows); err != nil {
		return nil, err
	}
	return args, nil
}

// schemaReason keeps the most specific line of a schema validation error.
func schemaReason(err error) string {
	var verr *jsonschema.ValidationError
	if errors.As(err, &verr) {
		for len(verr.Causes) > 0 {
			verr = verr.Causes[0]
		}
		msg := verr.Error()
		if i := strings.LastIndex(msg, "\n"); i >= 0 {
			msg = msg[i+1:]
		}
		return strings.TrimPrefix(strings.TrimSpace(msg), "- ")
	}
	return err.Error()
}

// normalize replaces well-known arguments with their validated, coerced values.
func normalize(tool *tools.Tool, args tools.Args, maxRows int) error {
	for key, v := range args {
		switch {
		case key == "limit":
			n, err := security.ValidateLimit(v, maxRows)
			if err != nil {
				return err
			}
			args[key] = n
		case key == "offset":
			n, err := security.ValidateOffset(v)
			if err != nil {
				return err
			}
			args[key] = n
		case key == "search":
			sc, err := security.ValidateSearchCondition(v)
			if err != nil {
				return err
			}
			if sc == nil {
				delete(args, key)
				continue
			}
			args[key] = sc
		case (key == "id" || strings.HasSuffix(key, "_id")) && acceptsInteger(tool, key):
			n, err := security.ValidateNumericID(key, v)
			if err != nil {
				return err
			}
			args[key] = n
		}
	}

	if args.Has("start_date") || args.Has("end_date") {
		dr, err := security.ValidateDateRange(args["start_date"], args["end_date"])
		if err != nil {
			return err
		}
		if dr.StartDate != "" {
			args["start_date"] = dr.StartDate
		}
		if dr.EndDate != "" {
			args["end_date"] = dr.EndDate
		}
	}
	return nil
}

// acceptsInteger reports whether the tool declares key as an integer-typed property.
func acceptsInteger(tool *tools.Tool, key string) bool {
	props, _ := tool.InputSchema["properties"].(map[string]any)
	prop, _ := props[key].(map[string]any)
	switch t := prop["type"].(type) {
	case string:
		return t == "integer"
	case []any:
		for _, v := range t {
			if v == "integer" {
				return true
			}
		}
	}
	return false
}

// maskResult converts handler output into plain JSON values and masks sensitive keys at
// any depth.
func maskResult(out any) (any, error) {
	if out == nil {
		return nil, nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool output: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("failed to decode tool output: %w", err)
	}
	return security.MaskSensitiveData(generic), nil
}
