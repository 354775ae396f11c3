package api

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// @Title: Documentation
// @Route: GET /docs, GET /docs/{name}
// @Description: Lists available asciidoc pages, or renders one as HTML
// @Response: text/html
func (s *Service) HandleDocs(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/docs")
	name = strings.Trim(name, "/")

	if name == "" {
		docList, err := s.docs.ListDocs()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "Failed to list docs")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><h1>Documentation</h1><ul>")
		for _, doc := range docList {
			fmt.Fprintf(w, `<li><a href="/docs/%s">%s</a></li>`, doc, doc)
		}
		fmt.Fprint(w, "</ul></body></html>")
		return
	}

	// No subdirectories, no traversal
	if strings.Contains(name, "/") || strings.Contains(name, "..") {
		s.writeError(w, http.StatusBadRequest, "Invalid doc name")
		return
	}

	content, err := s.docs.GetDoc(r.Context(), name)
	if err != nil {
		s.logger.Error("failed to load doc", zap.String("doc", name), zap.Error(err))
		s.writeError(w, http.StatusNotFound, "Doc not found")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, content)
}
