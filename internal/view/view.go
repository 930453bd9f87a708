// Package view はサーバーサイドレンダリングのHTMLテンプレートを提供する。
// テンプレートはバイナリに埋め込まれ、起動時に一度だけパースされる。
package view

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/d2regular/flask-oauth2-example/internal/model"
)

//go:embed templates/*.html
var templatesFS embed.FS

// AuthorizationData はログインページの描画データ。
type AuthorizationData struct {
	// Flash は直前のリクエストで設定された通知メッセージ。空の場合は表示しない。
	Flash string
	// LoginPath はOAuthフロー開始のリンク先。
	LoginPath string
}

// IndexData はホームページの描画データ。
type IndexData struct {
	Username string
	Friends  []model.Friend
}

// Renderer は埋め込みテンプレートのレンダラー。
type Renderer struct {
	templates *template.Template
}

// NewRenderer は埋め込みテンプレートをパースしてRendererを生成する。
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

// RenderAuthorization はログインページを描画する。
func (r *Renderer) RenderAuthorization(w http.ResponseWriter, data AuthorizationData) error {
	return r.render(w, "authorization.html", data)
}

// RenderIndex はホームページを描画する。
func (r *Renderer) RenderIndex(w http.ResponseWriter, data IndexData) error {
	return r.render(w, "index.html", data)
}

func (r *Renderer) render(w http.ResponseWriter, name string, data any) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := r.templates.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	return nil
}
