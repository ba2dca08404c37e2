package apperr

// ErrorBody is the inner object of the canonical error envelope.
type ErrorBody struct {
	Message string      `json:"message"`
	Type    string      `json:"type"`
	Code    string      `json:"code"`
	Param   string      `json:"param,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorResponse is the canonical error envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

const genericInternalMessage = "An unexpected error occurred."

// Envelope renders err as an HTTP status and canonical envelope. Internal
// error details are only exposed in development mode.
func Envelope(err error, devMode bool) (int, ErrorResponse) {
	e := From(err)
	body := ErrorBody{
		Message: e.Message,
		Type:    e.Kind.Type(),
		Code:    e.Code,
		Param:   e.Param,
		Details: e.Details,
	}
	if e.Kind == KindInternal {
		if devMode && e.cause != nil {
			body.Message = e.cause.Error()
		} else {
			body.Message = genericInternalMessage
			body.Details = nil
		}
	}
	if body.Message == "" {
		body.Message = "An error occurred during the request."
	}
	return e.Status, ErrorResponse{Error: body}
}
