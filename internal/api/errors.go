package api

import (
	"encoding/json"
	"net/http"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/internal/invocation"
)

const codeUnauthorized xerrors.Code = "UNAUTHORIZED"

func init() {
	xerrors.Register(codeUnauthorized, xerrors.Attributes{
		Message:  "missing or invalid bearer token",
		Severity: xerrors.SeverityInfo,
	})
}

// ErrorBody 是所有错误响应的结构。
type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

// ErrorPayload 描述单个错误。
type ErrorPayload struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Details  any               `json:"details,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func statusFor(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidParameters, xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case codeUnauthorized:
		return http.StatusUnauthorized
	case xerrors.CodeToolNotFound, xerrors.CodeNotFound, invocation.CodeInvocationNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict, invocation.CodeInvocationConflict:
		return http.StatusConflict
	case xerrors.CodeIncompatiblePlugin:
		return http.StatusUnprocessableEntity
	case xerrors.CodeWalletFailure:
		return http.StatusBadGateway
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	payload := ErrorPayload{Code: string(xerrors.CodeUnknown), Message: err.Error()}
	if coded, ok := xerrors.From(err); ok {
		message := coded.Message()
		if cause := coded.Unwrap(); cause != nil {
			message += ": " + cause.Error()
		}
		payload = ErrorPayload{
			Code:     string(coded.Code()),
			Message:  message,
			Details:  coded.Details(),
			Metadata: coded.Metadata(),
		}
	}
	writeJSON(w, statusFor(xerrors.Code(payload.Code)), ErrorBody{Error: payload})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
