package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
)

// Document is one uploaded input for the lifetime of a single analysis request.
type Document struct {
	ID         uuid.UUID        `json:"id"`
	Filename   string           `json:"filename"`
	Data       []byte           `json:"-"`
	Format     constants.Format `json:"format"`
	ReceivedAt time.Time        `json:"received_at"`
}

// NewDocument stamps an id and receive time; the format is filled in by detection.
func NewDocument(filename string, data []byte) Document {
	return Document{
		ID:         uuid.New(),
		Filename:   filename,
		Data:       data,
		Format:     constants.Unknown,
		ReceivedAt: time.Now().UTC(),
	}
}
