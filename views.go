package accounts

import (
	"net/http"

	"github.com/gofiber/template/django/v3"
)

// LayoutView is the page layout. Pages are rendered into its embed block.
const LayoutView = "base"

// NewViews loads the embedded page and email templates
func NewViews() (*django.Engine, error) {
	engine := django.NewFileSystem(http.FS(GetViewsFS()), ".html")
	if err := engine.Load(); err != nil {
		return nil, err
	}
	return engine, nil
}
