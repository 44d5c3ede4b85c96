// files.go implements the room document endpoints. Content bytes go through
// the configured storage backend; uploads, link generation, and deletions all
// land on the room's audit trail.
package admin

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/room"
	"github.com/gin-gonic/gin"
)

// maxRoomFileBytes caps a single room document.
const maxRoomFileBytes = 100 << 20

// @Summary      Upload room document
// @Description  Stores a document in a room. Terminal rooms are frozen and reject new documents.
// @Tags         Rooms (admin)
// @Security     Bearer
// @Accept       multipart/form-data
// @Produce      json
// @Param        id    path      string  true  "Room ID"
// @Param        file  formData  file    true  "Document"
// @Success      201  {object}  map[string]interface{}  "Stored file metadata"
// @Failure      400  {object}  map[string]interface{}  "Missing file or file too large"
// @Failure      404  {object}  map[string]interface{}  "Room not found"
// @Failure      409  {object}  map[string]interface{}  "Room is terminal"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/rooms/{id}/files [post]
// UploadRoomFileHandler stores one document in a room.
// POST /api/v1/rooms/:id/files
func (h *RoomHandlers) UploadRoomFileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fileHeader.Size > maxRoomFileBytes {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("file exceeds maximum size of %d bytes", maxRoomFileBytes),
			})
			return
		}

		src, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read upload"})
			return
		}
		defer src.Close()

		file, err := h.svc.UploadFile(c.Request.Context(), c.Param("id"), room.UploadFileInput{
			FileName:    fileHeader.Filename,
			ContentType: fileHeader.Header.Get("Content-Type"),
			Size:        fileHeader.Size,
			Body:        src,
			ActorEmail:  adminEmail(c),
		})
		if err != nil {
			switch {
			case errors.Is(err, room.ErrRoomNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			case errors.Is(err, room.ErrInvalidTransition):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store file"})
			}
			return
		}
		c.JSON(http.StatusCreated, gin.H{"file": file})
	}
}

// @Summary      List room documents
// @Tags         Rooms (admin)
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Room ID"
// @Success      200  {object}  map[string]interface{}  "File metadata list"
// @Failure      404  {object}  map[string]interface{}  "Room not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/rooms/{id}/files [get]
// ListRoomFilesHandler lists a room's documents.
// GET /api/v1/rooms/:id/files
func (h *RoomHandlers) ListRoomFilesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		files, err := h.svc.ListFiles(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, room.ErrRoomNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list files"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"files": files})
	}
}

// @Summary      Get document download URL
// @Description  Returns a time-limited download URL and records the download on the room's audit trail.
// @Tags         Rooms (admin)
// @Security     Bearer
// @Produce      json
// @Param        id      path  string  true  "Room ID"
// @Param        fileID  path  string  true  "File ID"
// @Success      200  {object}  map[string]interface{}  "url and expires_in seconds"
// @Failure      404  {object}  map[string]interface{}  "File not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/rooms/{id}/files/{fileID}/url [get]
// RoomFileURLHandler issues a download URL for one document.
// GET /api/v1/rooms/:id/files/:fileID/url
func (h *RoomHandlers) RoomFileURLHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		url, file, err := h.svc.FileDownloadURL(c.Request.Context(), c.Param("id"), c.Param("fileID"), adminEmail(c))
		if err != nil {
			if errors.Is(err, room.ErrFileNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate download URL"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"url":        url,
			"file":       file,
			"expires_in": 15 * 60,
		})
	}
}

// @Summary      Delete room document
// @Description  Removes a document's metadata and stored content. The deletion itself is audited.
// @Tags         Rooms (admin)
// @Security     Bearer
// @Produce      json
// @Param        id      path  string  true  "Room ID"
// @Param        fileID  path  string  true  "File ID"
// @Success      200  {object}  map[string]interface{}  "Deletion confirmation"
// @Failure      404  {object}  map[string]interface{}  "File not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/rooms/{id}/files/{fileID} [delete]
// DeleteRoomFileHandler removes one document.
// DELETE /api/v1/rooms/:id/files/:fileID
func (h *RoomHandlers) DeleteRoomFileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.svc.DeleteFile(c.Request.Context(), c.Param("id"), c.Param("fileID"), adminEmail(c))
		if err != nil {
			if errors.Is(err, room.ErrFileNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete file"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}
