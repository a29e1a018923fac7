package httpapi

import (
	"net/http"
	"strings"

	"anonpress.org/internal/alias"
	"anonpress.org/internal/article"
)

type manualAnonymizationRequest struct {
	Text    string        `json:"text"`
	Aliases []alias.Alias `json:"aliases"`
}

type listArticlesResponse struct {
	Items []article.Article `json:"items"`
	Count int               `json:"count"`
}

func (a *API) handleArticlesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listArticles(w, r)
	case http.MethodPost:
		a.createArticle(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleArticleResource routes /v1/articles/{category}/{id}[/op].
func (a *API) handleArticleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/articles/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch len(parts) {
	case 2:
		category, id := parts[0], parts[1]
		if category == "" || id == "" {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		switch r.Method {
		case http.MethodGet:
			a.getArticle(w, r, category, id)
		case http.MethodPut:
			a.updateArticle(w, r, category, id)
		case http.MethodDelete:
			a.deleteArticle(w, r, category, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	case 3:
		category, id, op := parts[0], parts[1], parts[2]
		switch op {
		case "anonymize":
			if r.Method != http.MethodPost {
				methodNotAllowed(w, r, http.MethodPost)
				return
			}
			a.autoAnonymizeArticle(w, r, category, id)
		case "manual-anonymization":
			if r.Method != http.MethodPut {
				methodNotAllowed(w, r, http.MethodPut)
				return
			}
			a.manualAnonymizeArticle(w, r, category, id)
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) listArticles(w http.ResponseWriter, r *http.Request) {
	filter := article.Filter{
		Categories: splitParam(r.URL.Query().Get("category")),
		Sections:   splitParam(r.URL.Query().Get("section")),
	}
	items, err := a.gate.List(r.Context(), principalOrPublic(r.Context()), filter)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if items == nil {
		items = []article.Article{}
	}
	writeJSON(w, http.StatusOK, listArticlesResponse{Items: items, Count: len(items)})
}

func (a *API) createArticle(w http.ResponseWriter, r *http.Request) {
	var draft article.Draft
	if err := decodeJSON(w, r, &draft); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	mode := strings.TrimSpace(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = article.ModeSingle
	}
	if mode != article.ModeSingle && mode != article.ModeBatch {
		writeError(w, r, http.StatusBadRequest, "mode must be single or batch")
		return
	}

	doc, err := a.gate.Create(r.Context(), principalOrPublic(r.Context()), draft, mode)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/articles/"+doc.Source+"/"+doc.ObjectID)
	writeJSON(w, http.StatusCreated, doc)
}

func (a *API) getArticle(w http.ResponseWriter, r *http.Request, category, id string) {
	doc, err := a.gate.Read(r.Context(), principalOrPublic(r.Context()), category, id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) updateArticle(w http.ResponseWriter, r *http.Request, category, id string) {
	var upd article.Update
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if upd.IsZero() {
		writeError(w, r, http.StatusBadRequest, "update payload is empty")
		return
	}

	doc, err := a.gate.Update(r.Context(), principalOrPublic(r.Context()), category, id, upd)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) deleteArticle(w http.ResponseWriter, r *http.Request, category, id string) {
	if err := a.gate.Delete(r.Context(), principalOrPublic(r.Context()), category, id); err != nil {
		handleStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) autoAnonymizeArticle(w http.ResponseWriter, r *http.Request, category, id string) {
	doc, err := a.gate.AutoAnonymize(r.Context(), principalOrPublic(r.Context()), category, id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) manualAnonymizeArticle(w http.ResponseWriter, r *http.Request, category, id string) {
	var req manualAnonymizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, r, http.StatusBadRequest, "text is required")
		return
	}

	doc, err := a.gate.ManualAnonymize(r.Context(), principalOrPublic(r.Context()), category, id, req.Text, req.Aliases)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func splitParam(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(raw, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
