package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sikap/api/internal/storage"
	"sikap/api/internal/store"
)

type ProfileInput struct {
	Name  string
	Email string
	Photo *storage.Upload
}

// UpdateProfile changes the requester's name, email and optionally photo.
func (s *Service) UpdateProfile(ctx context.Context, session Session, input ProfileInput) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	name, email := strings.TrimSpace(input.Name), strings.TrimSpace(input.Email)
	if name == "" {
		name = user.Name
	}
	if email == "" {
		email = user.Email
	}

	photo := user.Photo
	if input.Photo != nil {
		if !strings.HasPrefix(input.Photo.ContentType, "image/") {
			return nil, validationError("photo must be an image")
		}
		if s.files == nil {
			return nil, errStorageUnavailable
		}
		if s.cfg.MaxUploadBytes > 0 && input.Photo.Size > s.cfg.MaxUploadBytes {
			return nil, errFileTooLarge
		}
		stored, err := s.files.Save(ctx, *input.Photo)
		if err != nil {
			return nil, fmt.Errorf("save photo: %w", err)
		}
		photo = stored.FilePath
	}

	if err := s.store.UpdateUserProfile(ctx, user.ID, name, email, photo); err != nil {
		if photo != user.Photo {
			s.removeFiles([]string{photo})
		}
		if errors.Is(err, store.ErrDuplicate) {
			return nil, errEmailExists
		}
		return nil, err
	}
	if photo != user.Photo && user.Photo != "" {
		s.removeFiles([]string{user.Photo})
	}

	if input.Photo != nil {
		s.notifier.Dispatch(user.ID, "New Profile Photo", "Your profile photo was changed", "")
	} else {
		s.notifier.Dispatch(user.ID, "Profile Updated", "Your profile details were updated", "")
	}

	updated, err := s.store.GetUserByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return userPayload(updated), nil
}

func (s *Service) ChangePassword(ctx context.Context, session Session, current, next string) error {
	if current == "" || next == "" {
		return validationError("currentPassword and newPassword are required")
	}
	if err := s.auth.ChangePassword(ctx, session.UserID, current, next); err != nil {
		return authError(err)
	}
	s.notifier.Dispatch(session.UserID, "Account Security", "Your password was changed", "")
	return nil
}
