// Command devserver runs the in-memory stand-in for the remote campaign
// service. With GEMINI_API_KEY and OPENAI_API_KEY set it generates real
// captions and images; without them it falls back to template content.
package main

import (
	"context"
	"fmt"
	"os"

	"postqueue/internal/observability"
	"postqueue/internal/remotestub"

	"github.com/gin-gonic/gin"
)

func main() {
	ctx := context.Background()
	logger := observability.NewLogger()

	var captioner remotestub.Captioner = remotestub.TemplateCaptioner{}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		captioner = remotestub.NewGeminiCaptioner(key, logger)
		logger.Info(ctx, "using gemini for caption generation")
	}

	opts := []remotestub.Option{
		remotestub.WithConnectivity(
			os.Getenv("STUB_DRIVE_CONNECTED") != "false",
			os.Getenv("STUB_CALENDAR_CONNECTED") != "false",
		),
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		opts = append(opts, remotestub.WithImager(remotestub.NewOpenAIImager(key, logger)))
		logger.Info(ctx, "using openai for image generation")
	}
	if key := os.Getenv("STUB_API_KEY"); key != "" {
		opts = append(opts, remotestub.WithAPIKey(key))
	}

	stub := remotestub.NewServer(captioner, logger, opts...)

	router := gin.New()
	router.Use(observability.Middleware(logger))
	stub.Register(router)

	port := os.Getenv("DEVSERVER_PORT")
	if port == "" {
		port = "8090"
	}
	logger.Info(ctx, "devserver starting on port "+port)
	if err := router.Run(fmt.Sprintf(":%s", port)); err != nil {
		logger.Error(ctx, "devserver exited", err)
		os.Exit(1)
	}
}
