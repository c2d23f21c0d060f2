package api

import "net/http"

// openAPIDocument is a minimal, hand-written description of the HTTP
// surface, served at /api/openapi.json for the Swagger UI mounted at
// /swagger.
const openAPIDocument = `{
  "openapi": "3.0.3",
  "info": {"title": "rezn node API", "version": "1.0.0"},
  "paths": {
    "/apply": {"post": {"summary": "Apply a signed program"}},
    "/state": {"get": {"summary": "Fetch the desired map"}},
    "/state/raw": {"get": {"summary": "Fetch the raw stored desired map"}},
    "/stats": {"get": {"summary": "Fetch the current stats snapshot"}},
    "/stats/ws": {"get": {"summary": "Subscribe to the stats fan-out"}},
    "/secrets": {
      "get": {"summary": "List secret keys"},
      "post": {"summary": "Create or overwrite a secret"}
    },
    "/secret": {
      "get": {"summary": "Fetch a secret's plaintext"},
      "delete": {"summary": "Delete a secret"}
    }
  }
}`

const swaggerPage = `<!DOCTYPE html>
<html>
<head><title>rezn node API</title></head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist/swagger-ui-bundle.js"></script>
<script>
window.onload = () => SwaggerUIBundle({url: "/api/openapi.json", dom_id: "#swagger-ui"})
</script>
</body>
</html>`

func swaggerHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(swaggerPage))
	})
}
