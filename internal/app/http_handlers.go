package app

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"sikap/api/internal/export"
	"sikap/api/internal/importer"
	"sikap/api/internal/storage"
	"sikap/api/internal/store"
)

type idsBody struct {
	IDs []int64 `json:"ids"`
}

type shareBody struct {
	UserIDs []int64 `json:"userIds"`
}

func sessionResponse(session Session) map[string]any {
	return map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"expiresAt":    session.ExpiresAt,
		"user": map[string]any{
			"id":    session.UserID,
			"name":  session.Name,
			"email": session.Email,
			"role":  string(session.Role),
			"photo": session.Photo,
		},
	}
}

func (s *HTTPServer) setSessionCookie(c *gin.Context, session Session) {
	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, session.Token, maxAge, "/", "", s.opts.SecureCookies, true)
}

func (s *HTTPServer) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, "", -1, "/", "", s.opts.SecureCookies, true)
}

// Auth

func (s *HTTPServer) handleRegister(c *gin.Context) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !bind(c, &body) {
		return
	}
	user, err := s.service.Register(c.Request.Context(), body.Name, body.Email, body.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{"user": user})
}

func (s *HTTPServer) handleLogin(c *gin.Context) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !bind(c, &body) {
		return
	}
	session, err := s.service.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.setSessionCookie(c, session)
	writeJSON(c, http.StatusOK, sessionResponse(session))
}

func (s *HTTPServer) handleRefresh(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !bind(c, &body) {
		return
	}
	session, err := s.service.Refresh(c.Request.Context(), body.RefreshToken)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.setSessionCookie(c, session)
	writeJSON(c, http.StatusOK, sessionResponse(session))
}

func (s *HTTPServer) handleLogout(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !bind(c, &body) {
		return
	}
	var session Session
	if token := requestToken(c); token != "" {
		// An already invalid token still clears the cookie.
		session, _ = s.service.SessionFromToken(c.Request.Context(), token)
	}
	if err := s.service.Logout(c.Request.Context(), session, body.RefreshToken); err != nil {
		s.fail(c, err)
		return
	}
	s.clearSessionCookie(c)
	writeJSON(c, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSession(c *gin.Context) {
	token := requestToken(c)
	if token == "" {
		writeJSON(c, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	session, err := s.service.SessionFromToken(c.Request.Context(), token)
	if err != nil {
		writeJSON(c, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	response := sessionResponse(session)
	delete(response, "refreshToken")
	response["authenticated"] = true
	writeJSON(c, http.StatusOK, response)
}

func (s *HTTPServer) handleForgotPassword(c *gin.Context) {
	var body struct {
		Email string `json:"email"`
	}
	if !bind(c, &body) {
		return
	}
	payload, err := s.service.ForgotPassword(c.Request.Context(), body.Email)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleResetPassword(c *gin.Context) {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !bind(c, &body) {
		return
	}
	if err := s.service.ResetPassword(c.Request.Context(), body.Token, body.Password); err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"message": "Password has been reset"})
}

// Profile

func (s *HTTPServer) handleUpdateProfile(c *gin.Context, session Session) {
	var input ProfileInput
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		input.Name = c.PostForm("name")
		input.Email = c.PostForm("email")
		if header, err := c.FormFile("photo"); err == nil {
			file, err := header.Open()
			if err != nil {
				s.fail(c, err)
				return
			}
			defer file.Close()
			upload := formUpload(header, file)
			input.Photo = &upload
		} else if err != http.ErrMissingFile {
			s.fail(c, err)
			return
		}
	} else {
		var body struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		}
		if !bind(c, &body) {
			return
		}
		input.Name, input.Email = body.Name, body.Email
	}
	payload, err := s.service.UpdateProfile(c.Request.Context(), session, input)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleChangePassword(c *gin.Context, session Session) {
	var body struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !bind(c, &body) {
		return
	}
	if err := s.service.ChangePassword(c.Request.Context(), session, body.CurrentPassword, body.NewPassword); err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"message": "Password updated"})
}

// Users

func (s *HTTPServer) handleListUsers(c *gin.Context, session Session) {
	payload, err := s.service.ListUsers(c.Request.Context(), session, listParams(c))
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleGetUser(c *gin.Context, session Session) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	payload, err := s.service.GetUser(c.Request.Context(), session, id)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleCreateUser(c *gin.Context, session Session) {
	var input UserInput
	if !bind(c, &input) {
		return
	}
	payload, err := s.service.CreateUser(c.Request.Context(), session, input)
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, payload)
}

func (s *HTTPServer) handleUpdateUser(c *gin.Context, session Session) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var input UserInput
	if !bind(c, &input) {
		return
	}
	payload, err := s.service.UpdateUser(c.Request.Context(), session, id, input)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleDeleteUser(c *gin.Context, session Session) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.service.DeleteUser(c.Request.Context(), session, id); err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleBulkDeleteUsers(c *gin.Context, session Session) {
	var body idsBody
	if !bind(c, &body) {
		return
	}
	payload, err := s.service.BulkDeleteUsers(c.Request.Context(), session, body.IDs)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleImportUsers(c *gin.Context, session Session) {
	data, ok := s.csvUpload(c)
	if !ok {
		return
	}
	result, err := s.service.ImportUsers(c.Request.Context(), session, data)
	s.respondImport(c, result, err)
}

// Folders

func (s *HTTPServer) handleListFolders(c *gin.Context, session Session) {
	payload, err := s.service.ListFolders(c.Request.Context(), session, listParams(c), c.Query("parentId"))
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleCreateFolder(c *gin.Context, session Session) {
	var input FolderInput
	if !bind(c, &input) {
		return
	}
	payload, err := s.service.CreateFolder(c.Request.Context(), session, input)
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, payload)
}

func (s *HTTPServer) handleGetFolder(c *gin.Context, session Session) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	payload, err := s.service.GetFolder(c.Request.Context(), session, id)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleUpdateFolder(c *gin.Context, session Session) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var input FolderInput
	if !bind(c, &input) {
		return
	}
	payload, err := s.service.UpdateFolder(c.Request.Context(), session, id, input)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleDeleteFolder(c *gin.Context, session Session) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.service.DeleteFolder(c.Request.Context(), session, id); err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleBulkDeleteFolders(c *gin.Context, session Session) {
	var body idsBody
	if !bind(c, &body) {
		return
	}
	payload, err := s.service.BulkDeleteFolders(c.Request.Context(), session, body.IDs)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleFolderShares(c *gin.Context, session Session) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	payload, err := s.service.FolderShares(c.Request.Context(), session, id)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleShareFolder(c *gin.Context, session Session) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body shareBody
	if !bind(c, &body) {
		return
	}
	payload, err := s.service.ShareFolder(c.Request.Context(), session, id, body.UserIDs)
	s.respond(c, payload, err)
}

// Archives

func (s *HTTPServer) handleUploadArchive(c *gin.Context, session Session) {
	if s.service.cfg.MaxUploadBytes > 0 {
		// Allow some room for the other multipart fields.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.service.cfg.MaxUploadBytes+(1<<20))
	}
	folderID, err := parseID(c.PostForm("folderId"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "folderId is required", nil)
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		if err == http.ErrMissingFile {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "file is required", nil)
			return
		}
		s.fail(c, err)
		return
	}
	file, err := header.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	defer file.Close()

	payload, err := s.service.UploadArchive(c.Request.Context(), session, UploadInput{
		FolderID: folderID,
		Title:    c.PostForm("title"),
		File:     formUpload(header, file),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, payload)
}

func (s *HTTPServer) handleSearchArchives(c *gin.Context, session Session) {
	folderID, ok := optionalID(c, "folderId")
	if !ok {
		return
	}
	payload, err := s.service.SearchArchives(c.Request.Context(), session, strings.TrimSpace(c.Query("q")), folderID)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleGetArchive(c *gin.Context, session Session) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	payload, err := s.service.GetArchive(c.Request.Context(), session, id)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleDeleteArchive(c *gin.Context, session Session) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.service.DeleteArchive(c.Request.Context(), session, id); err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleBulkDeleteArchives(c *gin.Context, session Session) {
	var body idsBody
	if !bind(c, &body) {
		return
	}
	payload, err := s.service.BulkDeleteArchives(c.Request.Context(), session, body.IDs)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleArchiveShares(c *gin.Context, session Session) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	payload, err := s.service.ArchiveShares(c.Request.Context(), session, id)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleShareArchive(c *gin.Context, session Session) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body shareBody
	if !bind(c, &body) {
		return
	}
	payload, err := s.service.ShareArchive(c.Request.Context(), session, id, body.UserIDs)
	s.respond(c, payload, err)
}

// Categories

func (s *HTTPServer) handleListCategories(c *gin.Context, session Session) {
	payload, err := s.service.ListCategories(c.Request.Context(), listParams(c))
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleGetCategory(c *gin.Context, session Session) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	payload, err := s.service.GetCategory(c.Request.Context(), id)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleCreateCategory(c *gin.Context, session Session) {
	var input CategoryInput
	if !bind(c, &input) {
		return
	}
	payload, err := s.service.CreateCategory(c.Request.Context(), session, input)
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, payload)
}

func (s *HTTPServer) handleUpdateCategory(c *gin.Context, session Session) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var input CategoryInput
	if !bind(c, &input) {
		return
	}
	payload, err := s.service.UpdateCategory(c.Request.Context(), session, id, input)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleDeleteCategory(c *gin.Context, session Session) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.service.DeleteCategory(c.Request.Context(), session, id); err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleBulkDeleteCategories(c *gin.Context, session Session) {
	var body idsBody
	if !bind(c, &body) {
		return
	}
	payload, err := s.service.BulkDeleteCategories(c.Request.Context(), session, body.IDs)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleExportCategories(c *gin.Context, session Session) {
	result, err := s.service.ExportCategoriesCSV(c.Request.Context(), session)
	s.sendFile(c, result, err)
}

func (s *HTTPServer) handleExportLinkDirectory(c *gin.Context, session Session) {
	result, err := s.service.ExportLinkDirectoryPDF(c.Request.Context(), session)
	s.sendFile(c, result, err)
}

func (s *HTTPServer) sendFile(c *gin.Context, result *export.Result, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.MimeType, result.Data)
}

// Links

func (s *HTTPServer) handleListLinks(c *gin.Context, session Session) {
	filter := store.LinkFilter{ListParams: listParams(c)}
	categoryID, ok := optionalID(c, "categoryId")
	if !ok {
		return
	}
	filter.CategoryID = categoryID
	if value := strings.TrimSpace(c.Query("active")); value != "" {
		active, err := strconv.ParseBool(value)
		if err != nil {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid active", nil)
			return
		}
		filter.Active = &active
	}
	payload, err := s.service.ListLinks(c.Request.Context(), filter)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleLandingLinks(c *gin.Context) {
	payload, err := s.service.LandingLinks(c.Request.Context())
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleGetLink(c *gin.Context, session Session) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	payload, err := s.service.GetLink(c.Request.Context(), id)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleCreateLink(c *gin.Context, session Session) {
	var input LinkInput
	if !bind(c, &input) {
		return
	}
	payload, err := s.service.CreateLink(c.Request.Context(), session, input)
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, payload)
}

func (s *HTTPServer) handleUpdateLink(c *gin.Context, session Session) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var input LinkInput
	if !bind(c, &input) {
		return
	}
	payload, err := s.service.UpdateLink(c.Request.Context(), session, id, input)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleDeleteLink(c *gin.Context, session Session) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.service.DeleteLink(c.Request.Context(), session, id); err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleBulkDeleteLinks(c *gin.Context, session Session) {
	var body idsBody
	if !bind(c, &body) {
		return
	}
	payload, err := s.service.BulkDeleteLinks(c.Request.Context(), session, body.IDs)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleImportLinks(c *gin.Context, session Session) {
	data, ok := s.csvUpload(c)
	if !ok {
		return
	}
	result, err := s.service.ImportLinks(c.Request.Context(), session, data)
	s.respondImport(c, result, err)
}

// Messages

func (s *HTTPServer) handleSendMessage(c *gin.Context, session Session) {
	var input MessageInput
	if !bind(c, &input) {
		return
	}
	payload, err := s.service.SendMessage(c.Request.Context(), session, input)
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, payload)
}

func (s *HTTPServer) handleMessages(c *gin.Context, session Session) {
	partnerID, err := parseID(c.Query("partnerId"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "partnerId is required", nil)
		return
	}
	payload, err := s.service.Messages(c.Request.Context(), session, partnerID)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleConversations(c *gin.Context, session Session) {
	payload, err := s.service.Conversations(c.Request.Context(), session)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleMarkMessagesRead(c *gin.Context, session Session) {
	var body struct {
		SenderID int64 `json:"senderId"`
	}
	if !bind(c, &body) {
		return
	}
	if body.SenderID <= 0 {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "senderId is required", nil)
		return
	}
	payload, err := s.service.MarkMessagesRead(c.Request.Context(), session, body.SenderID)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleDeleteMessage(c *gin.Context, session Session) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.service.DeleteMessage(c.Request.Context(), session, id); err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleContacts(c *gin.Context, session Session) {
	payload, err := s.service.Contacts(c.Request.Context(), session, strings.TrimSpace(c.Query("search")))
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleAdmins(c *gin.Context, session Session) {
	payload, err := s.service.Admins(c.Request.Context())
	s.respond(c, payload, err)
}

// Notifications

func (s *HTTPServer) handleListNotifications(c *gin.Context, session Session) {
	payload, err := s.service.ListNotifications(c.Request.Context(), session)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleMarkNotificationsRead(c *gin.Context, session Session) {
	payload, err := s.service.MarkNotificationsRead(c.Request.Context(), session)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleDeleteNotifications(c *gin.Context, session Session) {
	payload, err := s.service.DeleteNotifications(c.Request.Context(), session, c.Query("range"))
	s.respond(c, payload, err)
}

// Dashboard

func (s *HTTPServer) handleDashboardStats(c *gin.Context, session Session) {
	payload, err := s.service.DashboardStats(c.Request.Context(), session)
	s.respond(c, payload, err)
}

func (s *HTTPServer) handleRecentContents(c *gin.Context, session Session) {
	payload, err := s.service.RecentContents(c.Request.Context(), session)
	s.respond(c, payload, err)
}

// Uploads

func formUpload(header *multipart.FileHeader, file multipart.File) storage.Upload {
	return storage.Upload{
		Reader:      file,
		Size:        header.Size,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	}
}

// csvUpload reads the "file" field of an import request.
func (s *HTTPServer) csvUpload(c *gin.Context) ([]byte, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "CSV file is required", nil)
		return nil, false
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Only .csv files are accepted", nil)
		return nil, false
	}
	file, err := header.Open()
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return data, true
}

func (s *HTTPServer) respondImport(c *gin.Context, result importer.Result, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Imported %d of %d rows", result.Success, result.Total),
		"total":   result.Total,
		"success": result.Success,
		"failed":  result.Failed,
	})
}
