package app

import (
	"sikap/api/internal/chat"
	"sikap/api/internal/store"
)

// JSON shapes returned by the API. Share lists never leave the service.

func userPayload(u store.User) map[string]any {
	return map[string]any{
		"id":        u.ID,
		"name":      u.Name,
		"email":     u.Email,
		"role":      u.Role,
		"roleId":    u.RoleID,
		"isActive":  u.IsActive,
		"photo":     u.Photo,
		"createdAt": u.CreatedAt,
	}
}

func userRefPayload(u store.User) map[string]any {
	return map[string]any{"id": u.ID, "name": u.Name, "email": u.Email}
}

func contactPayload(u store.User) map[string]any {
	return map[string]any{"id": u.ID, "name": u.Name, "photo": u.Photo, "role": u.Role}
}

func folderPayload(f store.Folder) map[string]any {
	return map[string]any{
		"id":           f.ID,
		"name":         f.Name,
		"ownerId":      f.OwnerID,
		"owner":        map[string]any{"id": f.OwnerID, "name": f.OwnerName},
		"parentId":     f.ParentID,
		"archiveCount": f.ArchiveCount,
		"createdAt":    f.CreatedAt,
	}
}

func archivePayload(a store.Archive) map[string]any {
	return map[string]any{
		"id":         a.ID,
		"title":      a.Title,
		"filePath":   a.FilePath,
		"fileName":   a.FileName,
		"fileType":   a.FileType,
		"fileSize":   a.FileSize,
		"folderId":   a.FolderID,
		"uploaderId": a.UploaderID,
		"uploader":   map[string]any{"id": a.UploaderID, "name": a.UploaderName},
		"createdAt":  a.CreatedAt,
	}
}

func categoryPayload(c store.Category) map[string]any {
	var inCharge any
	if c.InChargeID != nil {
		inCharge = map[string]any{"id": *c.InChargeID, "name": c.InChargeName}
	}
	return map[string]any{
		"id":         c.ID,
		"name":       c.Name,
		"inChargeId": c.InChargeID,
		"inCharge":   inCharge,
		"linkCount":  c.LinkCount,
	}
}

func linkPayload(l store.Link) map[string]any {
	return map[string]any{
		"id":         l.ID,
		"title":      l.Title,
		"url":        l.URL,
		"categoryId": l.CategoryID,
		"category":   map[string]any{"id": l.CategoryID, "name": l.CategoryName},
		"isActive":   l.IsActive,
		"createdAt":  l.CreatedAt,
	}
}

func messagePayload(m store.Message) map[string]any {
	var replyTo any
	if m.ReplyTo != nil {
		replyTo = map[string]any{
			"id":         m.ReplyTo.ID,
			"senderId":   m.ReplyTo.SenderID,
			"senderName": m.ReplyTo.SenderName,
			"content":    m.ReplyTo.Content,
		}
	}
	return map[string]any{
		"id":           m.ID,
		"senderId":     m.SenderID,
		"senderName":   m.SenderName,
		"receiverId":   m.ReceiverID,
		"receiverName": m.ReceiverName,
		"content":      m.Content,
		"isRead":       m.IsRead,
		"replyToId":    m.ReplyToID,
		"replyTo":      replyTo,
		"createdAt":    m.CreatedAt,
	}
}

func conversationPayload(c chat.Conversation) map[string]any {
	return map[string]any{
		"partnerId":   c.PartnerID,
		"partner":     map[string]any{"id": c.PartnerID, "name": c.PartnerName},
		"lastMessage": c.LastMessage,
		"timestamp":   c.Timestamp,
		"unreadCount": c.UnreadCount,
	}
}

func notificationPayload(n store.Notification) map[string]any {
	var link any
	if n.Link != "" {
		link = n.Link
	}
	return map[string]any{
		"id":        n.ID,
		"title":     n.Title,
		"message":   n.Message,
		"link":      link,
		"isRead":    n.IsRead,
		"createdAt": n.CreatedAt,
	}
}

func mapEach[T any](items []T, fn func(T) map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, fn(item))
	}
	return out
}

func paged(items []map[string]any, total int, params store.ListParams) map[string]any {
	params = params.Normalize()
	return map[string]any{
		"items": items,
		"total": total,
		"page":  params.Page,
		"limit": params.Limit,
	}
}
