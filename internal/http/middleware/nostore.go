package middleware

import "github.com/gofiber/fiber/v2"

// NoStore marks responses as non-cacheable. Numbers, pending PDFs and journal
// files change between requests and must never be served from a cache.
func NoStore() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.Next()
	}
}
