package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"r2r/internal/core"
)

const (
	OpExtract      = "extract"
	OpInsights     = "insights"
	OpPredictBills = "predict_bills"
	OpChat         = "chat"
)

type FailureKind string

const (
	KindNetwork     FailureKind = "network"
	KindParse       FailureKind = "parse"
	KindQuota       FailureKind = "quota"
	KindTimeout     FailureKind = "timeout"
	KindUnavailable FailureKind = "unavailable"
)

var errNotConfigured = errors.New("model not configured")

// ExternalServiceFailure is the single error variant at the gateway
// boundary. It matches core.ErrExternalService.
type ExternalServiceFailure struct {
	Op   string
	Kind FailureKind
	Err  error
}

func (e *ExternalServiceFailure) Error() string {
	return fmt.Sprintf("gateway %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ExternalServiceFailure) Unwrap() []error {
	return []error{core.ErrExternalService, e.Err}
}

// Fail wraps err as an ExternalServiceFailure, classifying its kind.
// An error that already is a failure is returned unchanged.
func Fail(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *ExternalServiceFailure
	if errors.As(err, &existing) {
		return err
	}
	return &ExternalServiceFailure{Op: op, Kind: Classify(err), Err: err}
}

// ParseFailure marks a response that could not be decoded.
func ParseFailure(op string, err error) error {
	return &ExternalServiceFailure{Op: op, Kind: KindParse, Err: err}
}

func Classify(err error) FailureKind {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTimeout
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return KindParse
	}
	msg := err.Error()
	if strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "429") {
		return KindQuota
	}
	return KindNetwork
}
