// Package classify maps run failures to stable user-facing messages.
package classify

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rbright/sayshot/internal/capture"
	"github.com/rbright/sayshot/internal/orchestrator"
)

type Kind string

const (
	KindPermissionDenied   Kind = "permission_denied"
	KindCaptureFailure     Kind = "capture_failure"
	KindTransportTimeout   Kind = "transport_timeout"
	KindNetworkUnavailable Kind = "network_unavailable"
	KindServerError        Kind = "server_error"
	KindEmptyCaption       Kind = "empty_caption"
	KindUnknown            Kind = "unknown"
)

// Context is the kind of run the failure happened in.
type Context string

const (
	ContextImage Context = "image"
	ContextText  Context = "text"
)

const (
	MsgTimeout          = "Request timed out. Please try again."
	MsgGatewayTimeout   = "Request timed out. The AI models may be loading or processing."
	MsgEmptyCaption     = "Image analysis returned empty text. Please try another screenshot."
	MsgNoConnection     = "Cannot connect to the server. Make sure the backend services are running."
	MsgPermissionDenied = "Screen capture permission denied."
	MsgFallbackImage    = "An error occurred while processing the screenshot."
	MsgFallbackText     = "An error occurred while processing the text."
)

// Classification is the user-facing view of one failure.
type Classification struct {
	Kind    Kind
	Status  int
	Message string
}

// Classify evaluates err in fixed priority order: timeout, gateway timeout,
// empty image caption, other HTTP status, no response, permission denial,
// any other message, then the context fallback.
func Classify(err error, ctx Context) Classification {
	if err == nil {
		return Classification{Kind: KindUnknown, Message: fallback(ctx)}
	}

	if _, ok := orchestrator.AsTimeout(err); ok {
		return Classification{Kind: KindTransportTimeout, Message: MsgTimeout}
	}

	if statusErr, ok := orchestrator.AsStatus(err); ok {
		code := statusErr.StatusCode
		switch {
		case code == http.StatusGatewayTimeout:
			return Classification{Kind: KindTransportTimeout, Status: code, Message: MsgGatewayTimeout}
		case code == http.StatusUnprocessableEntity && ctx == ContextImage:
			return Classification{Kind: KindEmptyCaption, Status: code, Message: MsgEmptyCaption}
		default:
			return Classification{Kind: KindServerError, Status: code, Message: fmt.Sprintf("Server error: %d", code)}
		}
	}

	if _, ok := orchestrator.AsNetwork(err); ok {
		return Classification{Kind: KindNetworkUnavailable, Message: MsgNoConnection}
	}

	if errors.Is(err, capture.ErrPermissionDenied) {
		return Classification{Kind: KindPermissionDenied, Message: MsgPermissionDenied}
	}

	kind := KindUnknown
	if errors.Is(err, capture.ErrCaptureFailed) {
		kind = KindCaptureFailure
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return Classification{Kind: kind, Message: msg}
	}
	return Classification{Kind: kind, Message: fallback(ctx)}
}

func fallback(ctx Context) string {
	if ctx == ContextText {
		return MsgFallbackText
	}
	return MsgFallbackImage
}
