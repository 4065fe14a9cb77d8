package server

import (
	"net/http"

	"groceryapp/pkg/domain"
	"groceryapp/services/grocery/internal/app"
	"groceryapp/services/grocery/internal/identity"
)

type createItemRequest struct {
	ShoppingListID string  `json:"shoppingListId"`
	Name           string  `json:"name"`
	Quantity       *int    `json:"quantity"`
	Priority       *int    `json:"priority"`
	Status         *string `json:"status"`
	Notes          *string `json:"notes"`
}

type updateItemRequest struct {
	Name     *string        `json:"name"`
	Quantity *int           `json:"quantity"`
	Priority *int           `json:"priority"`
	Status   *string        `json:"status"`
	Notes    nullableString `json:"notes"`
}

func (req updateItemRequest) changes() app.ItemChanges {
	return app.ItemChanges{
		Name:     req.Name,
		Quantity: req.Quantity,
		Priority: req.Priority,
		Status:   req.Status,
		Notes:    req.Notes.Value,
		NotesSet: req.Notes.Set,
	}
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

type bulkStatusRequest struct {
	IDs    []string `json:"ids"`
	Status string   `json:"status"`
}

type bulkStatusResponse struct {
	Message string `json:"message"`
	app.BulkStatusResult
}

type deleteCountResponse struct {
	Count   int64  `json:"count"`
	Message string `json:"message"`
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request, _ identity.Identity) {
	q := r.URL.Query()
	page, err := app.ParsePage(q.Get("page"), q.Get("limit"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	result, err := s.app.ListItems(r.Context(), app.ItemQuery{
		ShoppingListID: q.Get("shoppingListId"),
		Status:         q.Get("status"),
		Priority:       q.Get("priority"),
		Search:         q.Get("search"),
		Page:           page,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request, _ identity.Identity) {
	item, err := s.app.GetItem(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse[domain.GroceryItem]{Data: item})
}

func (s *Server) handleItemHistory(w http.ResponseWriter, r *http.Request, _ identity.Identity) {
	q := r.URL.Query()
	page, err := app.ParsePage(q.Get("page"), q.Get("limit"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	result, err := s.app.ItemHistory(r.Context(), r.PathValue("id"), page)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	item, err := s.app.CreateItem(r.Context(), id.UserID, app.CreateItemInput{
		ShoppingListID: req.ShoppingListID,
		Name:           req.Name,
		Quantity:       req.Quantity,
		Priority:       req.Priority,
		Status:         req.Status,
		Notes:          req.Notes,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dataResponse[domain.GroceryItem]{Data: item})
}

func (s *Server) handleReplaceItem(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	item, err := s.app.ReplaceItem(r.Context(), id.UserID, r.PathValue("id"), req.changes())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse[domain.GroceryItem]{Data: item})
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	item, err := s.app.UpdateItem(r.Context(), id.UserID, r.PathValue("id"), req.changes())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse[domain.GroceryItem]{Data: item})
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	if err := s.app.DeleteItem(r.Context(), id.UserID, r.PathValue("id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{Message: "Grocery item deleted successfully"})
}

func (s *Server) handleDeleteItems(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	var req idsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := s.app.DeleteItems(r.Context(), id.UserID, req.IDs); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{Message: "Grocery items deleted successfully"})
}

func (s *Server) handleBulkUpdateStatus(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	var req bulkStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	result, err := s.app.BulkUpdateStatus(r.Context(), id.UserID, req.IDs, req.Status)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkStatusResponse{
		Message:          "Successfully updated grocery items status",
		BulkStatusResult: result,
	})
}

func (s *Server) handleDeleteRanOut(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	count, err := s.app.DeleteRanOut(r.Context(), id.UserID, r.URL.Query().Get("shoppingListId"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteCountResponse{
		Count:   count,
		Message: "Successfully deleted items with status RANOUT",
	})
}
