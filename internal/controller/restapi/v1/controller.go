package v1

import (
	"github.com/andreyxaxa/Event-Analytics/internal/usecase"
	"github.com/andreyxaxa/Event-Analytics/pkg/logger"
)

type V1 struct {
	an     usecase.AnalyticsUseCase
	pl     usecase.PipelineUseCase
	logger logger.Interface
}
