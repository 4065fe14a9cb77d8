package server

import (
	"net/http"

	"groceryapp/services/grocery/internal/app"
	"groceryapp/services/grocery/internal/identity"
)

type createShoppingListRequest struct {
	Name  string  `json:"name"`
	Notes *string `json:"notes"`
}

type updateShoppingListRequest struct {
	Name  *string        `json:"name"`
	Notes nullableString `json:"notes"`
}

func (s *Server) handleCreateShoppingList(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	var req createShoppingListRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	list, err := s.app.CreateShoppingList(r.Context(), id.UserID, app.ShoppingListInput{Name: req.Name, Notes: req.Notes})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

func (s *Server) handleListShoppingLists(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	q := r.URL.Query()
	page, err := app.ParsePage(q.Get("page"), q.Get("limit"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	result, err := s.app.ListShoppingLists(r.Context(), id.UserID, app.ShoppingListQuery{
		Search:    q.Get("search"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
		Page:      page,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetShoppingList(w http.ResponseWriter, r *http.Request, _ identity.Identity) {
	list, err := s.app.GetShoppingList(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleUpdateShoppingList(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	var req updateShoppingListRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	list, err := s.app.UpdateShoppingList(r.Context(), id.UserID, r.PathValue("id"), app.ShoppingListChanges{
		Name:     req.Name,
		Notes:    req.Notes.Value,
		NotesSet: req.Notes.Set,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDeleteShoppingList(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	list, err := s.app.DeleteShoppingList(r.Context(), id.UserID, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
