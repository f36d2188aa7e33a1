package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jun/driveuploader/internal/app"
)

func main() {
	application, log, err := app.NewApp(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	lambda.Start(application.HandleRequest)
}
