package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"growth-engine/internal/runner"
)

// ErrInvalidEvent is returned for payloads that carry no operation.
var ErrInvalidEvent = errors.New("handler: invalid event")

type operationRunner interface {
	Run(ctx context.Context, req runner.Request) (runner.Result, error)
}

type Handler struct {
	runner operationRunner
	logger *slog.Logger
}

func NewHandler(r operationRunner, logger *slog.Logger) (*Handler, error) {
	if r == nil {
		return nil, errors.New("handler: runner must not be nil")
	}
	if logger == nil {
		return nil, errors.New("handler: logger must not be nil")
	}
	return &Handler{runner: r, logger: logger}, nil
}

// Handle accepts either a bare request {"operation":...,"period":...} or an
// EventBridge event carrying the request as its detail.
func (h *Handler) Handle(ctx context.Context, raw json.RawMessage) (runner.Result, error) {
	log := h.logger
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		log = log.With("aws_request_id", lc.AwsRequestID)
	}

	req, source, err := decodeRequest(raw)
	if err != nil {
		log.Warn("rejected invocation", "err", err)
		return runner.Result{}, err
	}
	log.Info("invocation received", "operation", req.Operation, "period", req.Period, "source", source)

	res, err := h.runner.Run(ctx, req)
	if err != nil {
		return runner.Result{}, err
	}
	return res, nil
}

func decodeRequest(raw json.RawMessage) (runner.Request, string, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return runner.Request{}, "", fmt.Errorf("%w: empty payload", ErrInvalidEvent)
	}

	var ev events.CloudWatchEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return runner.Request{}, "", fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	source := "direct"
	body := raw
	if ev.DetailType != "" {
		source = ev.Source
		body = ev.Detail
		if len(body) == 0 {
			return runner.Request{}, "", fmt.Errorf("%w: event %q has no detail", ErrInvalidEvent, ev.DetailType)
		}
	}

	var req runner.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return runner.Request{}, "", fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if strings.TrimSpace(req.Operation) == "" {
		return runner.Request{}, "", fmt.Errorf("%w: operation is required", ErrInvalidEvent)
	}
	return req, source, nil
}
