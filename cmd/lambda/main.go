package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"repokit/internal/config"
	"repokit/internal/di"
)

var (
	chiLambda *chiadapter.ChiLambdaV2
	app       *di.App
	coldStart = true
)

// init wires the application once per execution environment.
func init() {
	started := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	// Cleanup is never run; the execution environment is frozen, not shut down.
	app, _, err = di.InitializeApp(ctx, config.NewLoader(os.Getenv("REPOKIT_CONFIG_DIR"), config.EnvironmentFromEnv()))
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	mux, ok := app.Handler.(*chi.Mux)
	if !ok {
		log.Fatal("Failed to cast handler to chi.Mux")
	}
	chiLambda = chiadapter.NewV2(mux)

	app.Logger.Info("Cold start completed", zap.Duration("duration", time.Since(started)))
}

// Handler proxies an API Gateway HTTP API request to the router.
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if coldStart {
		app.Logger.Info("First invocation", zap.String("request_id", req.RequestContext.RequestID))
		coldStart = false
	}
	resp, err := chiLambda.ProxyWithContextV2(ctx, req)
	if err != nil {
		app.Logger.Error("Proxy failed",
			zap.String("path", req.RequestContext.HTTP.Path),
			zap.String("method", req.RequestContext.HTTP.Method),
			zap.Error(err),
		)
	}
	return resp, err
}

func main() {
	lambda.Start(Handler)
}
