package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cloudtext/docsync/internal/etag"
	"github.com/cloudtext/docsync/internal/store"
)

const (
	defaultPullLimit = 50
	maxPullLimit     = 100
)

type handlers struct {
	store  *store.Store
	logger *slog.Logger
}

type fileResponse struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Content        string  `json:"content,omitempty"`
	ETag           string  `json:"etag"`
	Version        int64   `json:"version"`
	ParentFolderID *string `json:"parentFolderId,omitempty"`
	IsFolder       bool    `json:"isFolder"`
	UpdatedAt      string  `json:"updatedAt"`
	DeletedAt      *string `json:"deletedAt,omitempty"`
}

func toFileResponse(f *store.File, includeContent bool) fileResponse {
	resp := fileResponse{
		ID: f.ID, Title: f.Title, ETag: f.ETag, Version: f.Version,
		ParentFolderID: f.ParentFolderID, IsFolder: f.IsFolder,
		UpdatedAt: nanoToISO(f.LastModified),
	}

	if includeContent {
		resp.Content = f.Content
	}

	if f.DeletedAt != nil {
		iso := nanoToISO(*f.DeletedAt)
		resp.DeletedAt = &iso
	}

	return resp
}

type pullCursor struct {
	UpdatedAt string `json:"updatedAt"`
	ID        string `json:"id"`
}

// pull implements GET /files/sync: cursored, stable-ordered incremental
// pull with updated_at ASC, id ASC ordering.
func (h *handlers) pull(c *gin.Context) {
	limit := defaultPullLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	if limit > maxPullLimit {
		limit = maxPullLimit
	}

	updatedAfter := c.Query("updated_after")

	var afterCursor *pullCursor

	if raw := c.Query("cursor"); raw != "" {
		decoded, err := decodeCursor(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}

		afterCursor = decoded
	}

	all, err := h.store.GetAllFiles(c.Request.Context())
	if err != nil {
		h.logger.Error("pull: list files", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})

		return
	}

	filtered := filterAndSortForPull(all, updatedAfter, afterCursor)

	hasMore := len(filtered) > limit
	page := filtered

	if hasMore {
		page = filtered[:limit]
	}

	resp := gin.H{
		"files":          toFileResponses(page),
		"has_more":       hasMore,
		"sync_timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}

	if hasMore {
		last := page[len(page)-1]
		resp["next_cursor"] = encodeCursor(pullCursor{UpdatedAt: nanoToISO(last.LastModified), ID: last.ID})
	} else {
		resp["next_cursor"] = ""
	}

	c.JSON(http.StatusOK, resp)
}

func filterAndSortForPull(files []*store.File, updatedAfter string, cursor *pullCursor) []*store.File {
	afterNano := isoToNano(updatedAfter)

	var out []*store.File

	for _, f := range files {
		if f.IsDeleted {
			if f.DeletedAt == nil || *f.DeletedAt <= afterNano {
				continue
			}
		} else if f.LastModified <= afterNano {
			continue
		}

		out = append(out, f)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastModified != out[j].LastModified {
			return out[i].LastModified < out[j].LastModified
		}

		return out[i].ID < out[j].ID
	})

	if cursor == nil {
		return out
	}

	cursorNano := isoToNano(cursor.UpdatedAt)

	var rest []*store.File

	for _, f := range out {
		if f.LastModified > cursorNano || (f.LastModified == cursorNano && f.ID > cursor.ID) {
			rest = append(rest, f)
		}
	}

	return rest
}

func toFileResponses(files []*store.File) []fileResponse {
	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, toFileResponse(f, true))
	}

	return out
}

// get implements GET /files/{id} honoring If-None-Match.
func (h *handlers) get(c *gin.Context) {
	id := c.Param("id")

	f, err := h.store.GetFile(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	if err != nil {
		h.logger.Error("get file", slog.String("id", id), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})

		return
	}

	if inm := etag.ParseHeader(c.GetHeader("If-None-Match")); inm != "" && etag.Compare(inm, f.ETag) {
		c.Header("ETag", etag.FormatHeader(f.ETag))
		c.Status(http.StatusNotModified)

		return
	}

	c.Header("ETag", etag.FormatHeader(f.ETag))
	c.Header("Last-Modified", nanoToISO(f.LastModified))
	c.Header("Cache-Control", "private, must-revalidate, max-age=0")
	c.Header("Vary", "If-None-Match")
	c.JSON(http.StatusOK, toFileResponse(f, true))
}

type putRequest struct {
	Content string `json:"content"`
	Title   string `json:"title"`
}

type preconditionFailedResponse struct {
	Error         string          `json:"error"`
	ServerVersion serverVersionDTO `json:"serverVersion"`
}

type serverVersionDTO struct {
	ETag      string `json:"etag"`
	Version   int64  `json:"version"`
	Content   string `json:"content"`
	UpdatedAt string `json:"updatedAt"`
}

// put implements PUT /files/{id} honoring an optional If-Match.
func (h *handlers) put(c *gin.Context) {
	id := c.Param("id")

	var req putRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	ctx := c.Request.Context()

	f, err := h.store.GetFile(ctx, id)
	notFound := errors.Is(err, store.ErrNotFound)

	if err != nil && !notFound {
		h.logger.Error("put file: load", slog.String("id", id), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})

		return
	}

	if notFound {
		f = &store.File{ID: id, Version: 0}
	}

	if ifMatch := etag.ParseHeader(c.GetHeader("If-Match")); ifMatch != "" && !etag.Compare(ifMatch, f.ETag) {
		c.JSON(http.StatusPreconditionFailed, preconditionFailedResponse{
			Error: "etag mismatch",
			ServerVersion: serverVersionDTO{
				ETag: f.ETag, Version: f.Version, Content: f.Content, UpdatedAt: nanoToISO(f.LastModified),
			},
		})

		return
	}

	now := time.Now()
	newETag := etag.Generate(etag.Input{ID: id, Content: req.Content, LastModifiedISO: now.UTC().Format(time.RFC3339Nano)})

	f.Title = req.Title
	f.Content = req.Content
	f.ETag = newETag
	f.Version++
	f.LastModified = now.UnixNano()
	f.IsDirty = false
	f.Size = int64(len(req.Content))

	if err := h.store.SaveFile(ctx, f); err != nil {
		h.logger.Error("put file: save", slog.String("id", id), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id": f.ID, "title": f.Title, "etag": f.ETag, "version": f.Version, "updatedAt": nanoToISO(f.LastModified),
	})
}

func encodeCursor(c pullCursor) string {
	b, _ := json.Marshal(c)
	return base64.StdEncoding.EncodeToString(b)
}

func decodeCursor(raw string) (*pullCursor, error) {
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}

	var c pullCursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	return &c, nil
}

func nanoToISO(nano int64) string {
	return time.Unix(0, nano).UTC().Format(time.RFC3339Nano)
}

func isoToNano(iso string) int64 {
	if iso == "" {
		return 0
	}

	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return 0
	}

	return t.UnixNano()
}
