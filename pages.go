package accounts

import "github.com/goliatone/go-router"

const (
	IndexView = "pages/index"
	AboutView = "pages/about"
	ErrorView = "errors/500"
)

// RegisterPageRoutes mounts the index and about pages
func RegisterPageRoutes[T any](app router.Router[T], cfg Config) {
	app.Get("/", func(ctx router.Context) error {
		return ctx.Render(IndexView, ViewContext(ctx, cfg, nil))
	}).SetName("pages.index")

	app.Get("/about/", func(ctx router.Context) error {
		return ctx.Render(AboutView, ViewContext(ctx, cfg, nil))
	}).SetName("pages.about")
}
