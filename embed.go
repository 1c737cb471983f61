package rimnswebui

import "embed"

// TemplateFS contains the embedded HTML templates used for rendering the chat page. The templates
// are split into a layout, the page itself, and the partial views that are streamed over SSE.
//
//go:embed templates/*
var TemplateFS embed.FS

// StaticFS contains the embedded static assets (the browser script and stylesheet) required by the
// chat page.
//
//go:embed static/*
var StaticFS embed.FS
