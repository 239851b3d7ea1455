package di

import (
	"net/http"

	"go.uber.org/zap"

	"repokit/internal/config"
	"repokit/internal/domain/catalog"
	"repokit/internal/infrastructure/observability"
	"repokit/internal/repository"
)

// App is the fully wired application.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Watcher    *config.Watcher
	Metrics    *observability.Collector
	Products   *repository.Repository[*catalog.Product]
	Categories *repository.Repository[*catalog.Category]
	Handler    http.Handler
}
