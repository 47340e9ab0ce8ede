package http

import (
	"errors"
	"net/http"

	"github.com/aretw0/stride/internal/analysis"
	"github.com/aretw0/stride/internal/remote"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/pipeline"
)

// Error kinds reported to clients alongside the message.
const (
	kindValidation     = "validation"
	kindConflict       = "conflict"
	kindNotFound       = "not_found"
	kindTimeout        = "timeout"
	kindUpstream       = "upstream"
	kindNotImplemented = "not_configured"
	kindInternal       = "internal"
)

type errorBody struct {
	Error  string   `json:"error"`
	Kind   string   `json:"kind"`
	Fields []string `json:"fields,omitempty"`
}

// statusOf maps a pipeline error to its HTTP status and kind.
func statusOf(err error) (int, string) {
	var (
		ve *domain.ValidationError
		se *remote.StatusError
	)
	switch {
	case errors.Is(err, remote.ErrTimeout):
		return http.StatusGatewayTimeout, kindTimeout
	case errors.As(err, &ve), errors.Is(err, domain.ErrUnknownStage):
		return http.StatusBadRequest, kindValidation
	case errors.Is(err, domain.ErrGenerationBlocked),
		errors.Is(err, domain.ErrSessionDetached),
		errors.Is(err, domain.ErrNoPlan),
		errors.Is(err, domain.ErrNoFeedback),
		errors.Is(err, domain.ErrNoInputs),
		errors.Is(err, domain.ErrNotAtFinalStage):
		return http.StatusConflict, kindConflict
	case errors.Is(err, domain.ErrExerciseNotFound),
		errors.Is(err, domain.ErrDraftNotFound),
		errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, kindNotFound
	case analysis.IsUpstream(err), errors.As(err, &se):
		return http.StatusBadGateway, kindUpstream
	case errors.Is(err, pipeline.ErrNoGenerator),
		errors.Is(err, pipeline.ErrNoAnalyzer),
		errors.Is(err, pipeline.ErrNoDraftStore):
		return http.StatusNotImplemented, kindNotImplemented
	default:
		return http.StatusInternalServerError, kindInternal
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := statusOf(err)
	body := errorBody{Error: err.Error(), Kind: kind}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		body.Fields = ve.Fields
	}
	writeJSON(w, status, body)
}
