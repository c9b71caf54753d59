package store

import "time"

type Role struct {
	ID   int64
	Name string
}

type User struct {
	ID               int64
	Name             string
	Email            string
	PasswordHash     string
	RoleID           int64
	Role             string
	IsActive         bool
	Photo            string
	ResetToken       string
	ResetTokenExpiry *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UserRef is the public projection of a user embedded in other payloads.
type UserRef struct {
	ID    int64
	Name  string
	Email string
	Photo string
	Role  string
}

func (u User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Email: u.Email, Photo: u.Photo, Role: u.Role}
}

type Folder struct {
	ID           int64
	Name         string
	OwnerID      int64
	OwnerName    string
	ParentID     *int64
	ArchiveCount int
	// SharedWith holds FolderShare user ids. It never leaves the service layer.
	SharedWith []int64
	CreatedAt  time.Time
}

type Archive struct {
	ID            int64
	Title         string
	FilePath      string
	FileName      string
	FileType      string
	FileSize      int64
	FolderID      int64
	FolderOwnerID int64
	UploaderID    int64
	UploaderName  string
	// SharedWith holds ArchiveShare user ids. It never leaves the service layer.
	SharedWith []int64
	CreatedAt  time.Time
}

type Category struct {
	ID           int64
	Name         string
	InChargeID   *int64
	InChargeName string
	LinkCount    int
}

type Link struct {
	ID           int64
	Title        string
	URL          string
	CategoryID   int64
	CategoryName string
	IsActive     bool
	CreatedAt    time.Time
}

type Message struct {
	ID           int64
	SenderID     int64
	SenderName   string
	ReceiverID   int64
	ReceiverName string
	Content      string
	IsRead       bool
	ReplyToID    *int64
	ReplyTo      *MessageRef
	CreatedAt    time.Time
}

// MessageRef is the quoted message shown under a reply.
type MessageRef struct {
	ID         int64
	SenderID   int64
	SenderName string
	Content    string
}

type Notification struct {
	ID        int64
	UserID    int64
	Title     string
	Message   string
	Link      string
	IsRead    bool
	CreatedAt time.Time
}

type DashboardStats struct {
	TotalUsers      int
	TotalCategories int
	ActiveLinks     int
	InactiveLinks   int
}

// ListParams carries the shared search/page/limit query parameters.
type ListParams struct {
	Search string
	Page   int
	Limit  int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps page and limit into their accepted ranges.
func (p ListParams) Normalize() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

func (p ListParams) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

type FolderFilter struct {
	ListParams
	// ViewerID restricts results to owned or shared folders unless All is set.
	ViewerID int64
	All      bool
	// ParentID narrows to direct children; RootOnly to top-level folders.
	ParentID *int64
	RootOnly bool
}

type LinkFilter struct {
	ListParams
	CategoryID *int64
	Active     *bool
}

type ArchiveQuery struct {
	Text     string
	FolderID *int64
	// ViewerID restricts to archives the viewer uploaded, owns the folder of,
	// or holds an ArchiveShare for, unless All is set.
	ViewerID int64
	All      bool
	Limit    int
}

// NotificationWindow selects notifications by creation time. Zero values
// leave that bound open.
type NotificationWindow struct {
	Since  time.Time
	Before time.Time
}

type ContactQuery struct {
	SelfID     int64
	Search     string
	AdminsOnly bool
	Limit      int
}
