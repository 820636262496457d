// Package render holds the helpers shared by the render backends. Each
// backend lives in a subpackage and implements site.Renderer.
//   - inprocess drives an http.Handler directly.
//   - colly fetches from a running HTTP origin.
//   - headless drives Chrome through chromedp.
//   - ratelimit wraps any backend with a token bucket.
package render
