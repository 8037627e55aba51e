package handlers

import (
	"github.com/feichai0017/legal-intel/internal/service/intel"
	"github.com/feichai0017/legal-intel/pkg/logger"
)

type Handlers struct {
	Document *DocumentHandler
	Batch    *BatchHandler
}

func NewHandlers(pipeline intel.Pipeline, log logger.Logger) *Handlers {
	return &Handlers{
		Document: NewDocumentHandler(pipeline, log),
		Batch:    NewBatchHandler(pipeline, log),
	}
}
