package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/jun/driveuploader/internal/app"
)

func main() {
	figure.NewFigure("drive uploader", "cybermedium", true).Print()
	fmt.Println()

	application, log, err := app.NewApp(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}

	server := &http.Server{
		Addr:              application.Addr(),
		Handler:           proxy(application, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("starting local server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("server stopped")
}

// proxy adapts net/http to API Gateway proxy events. Bodies are passed
// base64-encoded, as API Gateway does for binary media types.
func proxy(application *app.App, log zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		headers := make(map[string]string)
		for k, v := range r.Header {
			headers[k] = v[0]
		}

		queryParams := make(map[string]string)
		for k, v := range r.URL.Query() {
			queryParams[k] = v[0]
		}

		req := events.APIGatewayProxyRequest{
			Path:                  r.URL.Path,
			HTTPMethod:            r.Method,
			Headers:               headers,
			QueryStringParameters: queryParams,
			Body:                  base64.StdEncoding.EncodeToString(body),
			IsBase64Encoded:       true,
		}

		resp, err := application.HandleRequest(r.Context(), req)
		if err != nil {
			log.Error().Err(err).Msg("handle request")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		for k, vs := range resp.MultiValueHeaders {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.StatusCode)

		out := []byte(resp.Body)
		if resp.IsBase64Encoded {
			if out, err = base64.StdEncoding.DecodeString(resp.Body); err != nil {
				log.Error().Err(err).Msg("decode response body")
				return
			}
		}
		w.Write(out)
	})
}
