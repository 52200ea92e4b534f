// Package api exposes a thin, read-only HTTP+WebSocket view over the
// manifest for remote consumers (spec §1, §4.13). It never mutates state —
// every write still goes through internal/manifest.Store.Update from a
// CLI-invoked workflow; this package only renders what is already there
// and pushes a notification when it changes.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/xcawolfe-amzn/ppg/internal/apperr"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/watch"
)

// Handlers serves the read-only manifest views.
type Handlers struct {
	Store    *manifest.Store
	Watcher  *watch.ManifestWatcher
	upgrader websocket.Upgrader
}

// NewHandlers returns Handlers backed by store. watcher may be nil, in
// which case GET /watch responds 503 rather than hanging forever.
func NewHandlers(store *manifest.Store, watcher *watch.ManifestWatcher) *Handlers {
	return &Handlers{
		Store:   store,
		Watcher: watcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Single-user local/remote observer tool, not a public service:
			// any origin may open the watch socket.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts the consumer routes onto router.
func (h *Handlers) Register(router gin.IRouter) {
	router.GET("/manifest", h.getManifest)
	router.GET("/worktrees/:id", h.getWorktree)
	router.GET("/agents/:id", h.getAgent)
	router.GET("/watch", h.watchManifest)
}

func (h *Handlers) getManifest(c *gin.Context) {
	mf, err := h.Store.Read()
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, mf)
}

func (h *Handlers) getWorktree(c *gin.Context) {
	mf, err := h.Store.Read()
	if err != nil {
		writeErr(c, err)
		return
	}
	wt, ok := mf.Worktrees[c.Param("id")]
	if !ok {
		writeErr(c, apperr.New(apperr.CodeWorktreeNotFound, "worktree not found: "+c.Param("id"), nil))
		return
	}
	c.JSON(http.StatusOK, wt)
}

func (h *Handlers) getAgent(c *gin.Context) {
	mf, err := h.Store.Read()
	if err != nil {
		writeErr(c, err)
		return
	}
	_, ag, ok := mf.FindAgent(c.Param("id"))
	if !ok {
		writeErr(c, apperr.New(apperr.CodeAgentNotFound, "agent not found: "+c.Param("id"), nil))
		return
	}
	c.JSON(http.StatusOK, ag)
}

// watchManifest upgrades to a WebSocket and forwards one JSON frame
// {"manifest": ...} per debounced change, until the client disconnects.
func (h *Handlers) watchManifest(c *gin.Context) {
	if h.Watcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "watch not enabled"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Send the current snapshot immediately so a fresh connection doesn't
	// wait for the next change to learn the current state.
	if mf, err := h.Store.Read(); err == nil {
		if conn.WriteJSON(gin.H{"manifest": mf}) != nil {
			return
		}
	}

	for range h.Watcher.Events() {
		mf, err := h.Store.Read()
		if err != nil {
			continue
		}
		if conn.WriteJSON(gin.H{"manifest": mf}) != nil {
			return
		}
	}
}

func writeErr(c *gin.Context, err error) {
	if appErr, ok := err.(*apperr.Error); ok {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperr.CodeWorktreeNotFound, apperr.CodeAgentNotFound, apperr.CodeTargetNotFound:
			status = http.StatusNotFound
		case apperr.CodeInvalidArgs:
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": gin.H{"code": appErr.Code, "message": appErr.Message, "details": appErr.Details}})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": err.Error()}})
}

// NewRouter builds a standalone gin.Engine with the consumer routes
// mounted at root, for a dedicated "ppg serve" process.
func NewRouter(h *Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h.Register(r)
	return r
}
