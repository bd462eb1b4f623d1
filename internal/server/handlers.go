package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/treefix50/topten/internal/scheduler"
	"github.com/treefix50/topten/internal/storage"
	"github.com/treefix50/topten/internal/topten"
)

const errInternal = "internal error"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error().Err(err).Str("event", "http.health_failed").Msg("database ping failed")
		writeError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type taskView struct {
	Name        string           `json:"name"`
	Key         string           `json:"key"`
	Category    string           `json:"category"`
	Description string           `json:"description"`
	Config      *topten.Config   `json:"config"`
	Status      scheduler.Status `json:"status"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, taskView{
		Name:        s.task.Name(),
		Key:         s.task.Key(),
		Category:    s.task.Category(),
		Description: s.task.Description(),
		Config:      s.config.TopTen(),
		Status:      s.runner.Status(),
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	runID, err := s.runner.Trigger()
	switch {
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		writeError(w, "a run is already in progress", http.StatusConflict)
		return
	case errors.Is(err, scheduler.ErrNotStarted):
		writeError(w, "scheduler is not running", http.StatusServiceUnavailable)
		return
	case err != nil:
		s.logger.Error().Err(err).Str("event", "http.trigger_failed").Msg("trigger failed")
		writeError(w, errInternal, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID})
}

type collectionView struct {
	Collection topten.Item   `json:"collection"`
	Items      []topten.Item `json:"items"`
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.TopTen()
	if cfg == nil {
		writeError(w, "configuration is missing", http.StatusServiceUnavailable)
		return
	}
	found, err := s.store.ListItems(r.Context(), topten.ItemQuery{
		Kinds: []topten.Kind{topten.KindCollection},
		Name:  cfg.CollectionName,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("event", "http.collection_failed").Msg("collection lookup failed")
		writeError(w, errInternal, http.StatusInternalServerError)
		return
	}
	if len(found) == 0 {
		writeError(w, "collection not found", http.StatusNotFound)
		return
	}
	items, err := s.store.LinkedChildren(r.Context(), found[0].ID)
	if err != nil {
		s.logger.Error().Err(err).Str("event", "http.collection_failed").Msg("collection members failed")
		writeError(w, errInternal, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, collectionView{Collection: found[0], Items: items})
}

func (s *Server) handleSaveItems(w http.ResponseWriter, r *http.Request) {
	var items []storage.MediaItem
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&items); err != nil {
		writeError(w, "bad request", http.StatusBadRequest)
		return
	}
	for _, item := range items {
		if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.Name) == "" {
			writeError(w, "id and name are required", http.StatusBadRequest)
			return
		}
		if !item.Kind.Valid() || item.Kind == topten.KindCollection {
			writeError(w, "unsupported kind: "+string(item.Kind), http.StatusBadRequest)
			return
		}
	}
	if err := s.store.SaveItems(r.Context(), items); err != nil {
		s.logger.Error().Err(err).Str("event", "http.save_items_failed").Msg("saving items failed")
		writeError(w, errInternal, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"saved": len(items)})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		writeError(w, "bad request", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		writeError(w, "name is required", http.StatusBadRequest)
		return
	}

	existing, ok, err := s.store.GetUserByName(r.Context(), name)
	if err != nil {
		writeError(w, errInternal, http.StatusInternalServerError)
		return
	}
	if ok {
		writeJSON(w, http.StatusOK, existing)
		return
	}

	user := storage.User{ID: strings.TrimSpace(payload.ID), Name: name, CreatedAt: time.Now().UTC()}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		s.logger.Error().Err(err).Str("event", "http.create_user_failed").Msg("creating user failed")
		writeError(w, errInternal, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type playedView struct {
	UserID         string    `json:"userId"`
	ItemID         string    `json:"itemId"`
	Played         bool      `json:"played"`
	LastPlayedDate time.Time `json:"lastPlayedDate"`
}

// handleMarkPlayed accepts an optional datePlayed query parameter in RFC 3339.
func (s *Server) handleMarkPlayed(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	itemID := chi.URLParam(r, "itemID")

	at := time.Now().UTC()
	if raw := r.URL.Query().Get("datePlayed"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, "datePlayed must be RFC 3339", http.StatusBadRequest)
			return
		}
		at = parsed.UTC()
	}

	if _, ok, err := s.store.GetUser(r.Context(), userID); err != nil {
		writeError(w, errInternal, http.StatusInternalServerError)
		return
	} else if !ok {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}
	item, ok, err := s.store.GetItem(r.Context(), itemID)
	if err != nil {
		writeError(w, errInternal, http.StatusInternalServerError)
		return
	}
	if !ok || item.Kind == topten.KindCollection {
		writeError(w, "item not found", http.StatusNotFound)
		return
	}

	if err := s.store.MarkPlayed(r.Context(), userID, itemID, at); err != nil {
		s.logger.Error().Err(err).Str("event", "http.mark_played_failed").Msg("recording play failed")
		writeError(w, errInternal, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, playedView{UserID: userID, ItemID: itemID, Played: true, LastPlayedDate: at})
}
