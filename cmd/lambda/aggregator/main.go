// aggregator Lambda runs one fleet aggregation pass for a hub run whose
// dispatch records live in DynamoDB.
package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	awslambda "github.com/aws/aws-lambda-go/lambda"

	intlambda "github.com/dwsmith1983/fleetgate/internal/lambda"
)

var (
	deps     *intlambda.Deps
	depsOnce sync.Once
	depsErr  error
)

func getDeps() (*intlambda.Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = intlambda.Init(context.Background())
	})
	return deps, depsErr
}

func handler(ctx context.Context, req intlambda.AggregateRequest) (intlambda.AggregateResponse, error) {
	d, err := getDeps()
	if err != nil {
		return intlambda.AggregateResponse{}, err
	}
	return intlambda.Handle(ctx, d, req)
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
