package main

import (
	"os"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
)

func main() {
	defer jsii.Close()

	app := awscdk.NewApp(nil)
	cfg := DefaultConfig()

	if name := os.Getenv("FLEETGATE_NAME"); name != "" {
		cfg.Name = name
	}
	cfg.TokenSecretARN = os.Getenv("FLEETGATE_TOKEN_SECRET_ARN")
	cfg.GitHubAPIURL = os.Getenv("GITHUB_API_URL")
	cfg.ArtifactName = os.Getenv("FLEETGATE_ARTIFACT_NAME")
	cfg.DestroyOnDelete = os.Getenv("FLEETGATE_DESTROY_ON_DELETE") == "true"

	stackName := "FleetgateStack"
	if name := os.Getenv("FLEETGATE_STACK_NAME"); name != "" {
		stackName = name
	}

	NewFleetgateStack(app, stackName, cfg)
	app.Synth(nil)
}
