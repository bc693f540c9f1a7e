// Command verify-proxy checks that product images resolve through the API's image proxy.
// It lists products, picks the first one whose image URL points at the proxy route and
// fetches the image, printing status, content type and length.
package main

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/storefront/service/client"
	"github.com/storefront/service/internal/storage"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	_ = godotenv.Load()

	baseURL := os.Getenv("API_BASE_URL")
	if len(os.Args) > 1 {
		baseURL = os.Args[1]
	}
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := client.New(baseURL)

	products, err := c.ListProducts(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("base_url", baseURL).Msg("failed to list products")
	}
	log.Info().Int("count", len(products)).Msg("products listed")

	var target *client.Product
	for i := range products {
		if strings.Contains(products[i].ImageURL, storage.ProxyRoute) {
			target = &products[i]
			break
		}
	}
	if target == nil {
		log.Warn().Msg("no product uses the image proxy")
		return
	}
	log.Info().Str("product_id", target.ID).Str("name", target.Name).Str("image_url", target.ImageURL).Msg("testing proxy")

	img, err := c.FetchImage(ctx, target.ImageURL)
	if err != nil {
		log.Fatal().Err(err).Msg("image fetch failed")
	}
	defer img.Body.Close()

	n, err := io.Copy(io.Discard, img.Body)
	if err != nil {
		log.Fatal().Err(err).Msg("image stream interrupted")
	}

	log.Info().
		Int("status", img.StatusCode).
		Str("content_type", img.ContentType).
		Int64("content_length", img.ContentLength).
		Int64("bytes_read", n).
		Str("cache_control", img.CacheControl).
		Msg("image proxy is working")
}
