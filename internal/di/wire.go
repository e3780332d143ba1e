//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SigTrack/pkg/config"
)

// InitializeContainer wires up all dependencies.
// Wire will generate the implementation of this function.
func InitializeContainer(cfg *config.Config) (*Container, func(), error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,

		// Market data
		ProvideBytesCache,
		ProvideMarketData,
		ProvideValidator,
		ProvideDetector,

		// Persistence and audit
		ProvideSignalStore,
		ProvideAuditSink,
		ProvideAuditRecorder,

		// Use cases
		ProvideEvaluator,
		ProvideIngestor,

		// Application server
		ProvideHTTPServer,
		ProvideApp,
		ProvideContainer,
	)
	return nil, nil, nil
}
