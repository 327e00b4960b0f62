package observability

import (
	"context"

	"github.com/honeynil/RentalSettlementService/internal/infrastructure/observability"
)

func Setup(serviceName, otlpEndpoint string) func(context.Context) error {
	observability.InitLogger()
	observability.InitMetrics()
	return observability.InitTracing(serviceName, otlpEndpoint)
}
