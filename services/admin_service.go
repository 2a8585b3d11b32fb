package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"cloud-connect/domain"
	apperrors "cloud-connect/errors"
	"cloud-connect/repositories"
	"cloud-connect/search"
)

// IAdminService backs the REST collaborator surface: room and membership
// data entry plus the moderation actions that have an HTTP variant.
type IAdminService interface {
	CreateRoom(name, code string) (domain.Room, error)
	JoinRoom(code, username string) (domain.Room, domain.User, error)
	ListUsers(code string, status *domain.Status) ([]domain.User, error)
	DeleteMessage(id uuid.UUID) error
	SearchMessages(ctx context.Context, code, terms string, limit int) ([]search.Hit, error)
}

type AdminService struct {
	rooms    repositories.IRoomRepository
	users    repositories.IUserRepository
	messages repositories.IMessageRepository
	index    *search.MessageIndex
	log      *slog.Logger
}

func NewAdminService(
	log *slog.Logger,
	rooms repositories.IRoomRepository,
	users repositories.IUserRepository,
	messages repositories.IMessageRepository,
	index *search.MessageIndex,
) *AdminService {
	return &AdminService{
		rooms:    rooms,
		users:    users,
		messages: messages,
		index:    index,
		log:      log,
	}
}

func (s *AdminService) CreateRoom(name, code string) (domain.Room, error) {
	room := domain.Room{
		ID:   uuid.New(),
		Name: name,
		Code: domain.NormalizeCode(code),
	}
	if err := s.rooms.Create(room); err != nil {
		return domain.Room{}, err
	}
	s.log.Info("room created", "room", room.Code)
	return room, nil
}

// JoinRoom creates a pending participant; admission happens later through
// approve_user.
func (s *AdminService) JoinRoom(code, username string) (domain.Room, domain.User, error) {
	room, err := s.rooms.FindByCode(code)
	if err != nil {
		return domain.Room{}, domain.User{}, err
	}
	user := domain.User{
		ID:       uuid.New(),
		Username: username,
		RoomID:   room.ID,
		Role:     domain.RoleParticipant,
		Status:   domain.StatusPending,
	}
	if err := s.users.Create(user); err != nil {
		return domain.Room{}, domain.User{}, err
	}
	return room, user, nil
}

func (s *AdminService) ListUsers(code string, status *domain.Status) ([]domain.User, error) {
	room, err := s.rooms.FindByCode(code)
	if err != nil {
		return nil, err
	}
	users, err := s.users.ListByRoom(room.ID)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return users, nil
	}
	return lo.Filter(users, func(u domain.User, _ int) bool {
		return u.Status == *status
	}), nil
}

// DeleteMessage is the hard-delete rejection path. The search index only
// holds approved messages, so a purge of an unindexed id is a no-op there.
func (s *AdminService) DeleteMessage(id uuid.UUID) error {
	if err := s.messages.Delete(id); err != nil {
		return err
	}
	if err := s.index.Remove(id); err != nil {
		s.log.Warn("message index purge failed", "message", id, "error", err)
	}
	return nil
}

func (s *AdminService) SearchMessages(ctx context.Context, code, terms string, limit int) ([]search.Hit, error) {
	if _, err := s.rooms.FindByCode(code); err != nil {
		return nil, err
	}
	if terms == "" {
		return nil, apperrors.ErrEmptyContent
	}
	return s.index.Search(ctx, code, terms, limit)
}
