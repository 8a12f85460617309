// Package server exposes document analysis over HTTP, gRPC and MCP.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
)

// DocumentAnalyzer is the pipeline as seen by the transports.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, filename string, data []byte) (entity.StructuredRecord, error)
}

// FormatInfo is one entry of the supported-formats listing.
type FormatInfo struct {
	Format     constants.Format `json:"format"`
	Extensions []string         `json:"extensions"`
}

// SupportedFormats lists formats in their declared order.
func SupportedFormats() []FormatInfo {
	byFormat := constants.ExtensionsByFormat()
	out := make([]FormatInfo, 0, len(constants.Formats))
	for _, f := range constants.Formats {
		out = append(out, FormatInfo{Format: f, Extensions: byFormat[f]})
	}
	return out
}

// ErrorBody is the JSON error payload shared by HTTP and MCP.
type ErrorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func errorBody(ctx context.Context, err error) ErrorBody {
	msg := err.Error()
	var ae *common.AppError
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	return ErrorBody{Error: msg, Code: common.CodeOf(err), RequestID: common.RequestIDFromContext(ctx)}
}

// HTTPStatus maps an error code onto an HTTP status.
func HTTPStatus(err error) int {
	switch common.CodeOf(err) {
	case common.CodeUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case common.CodeExtraction:
		return http.StatusUnprocessableEntity
	case common.CodeInvalidInput:
		return http.StatusBadRequest
	case common.CodeTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
