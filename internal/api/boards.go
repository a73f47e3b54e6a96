package api

import (
	"fmt"
	"log/slog"
	"sort"

	"kanbanhub/internal/activity"
	"kanbanhub/internal/api/middleware"
	"kanbanhub/internal/api/response"
	"kanbanhub/internal/apperr"
	"kanbanhub/internal/model"
	"kanbanhub/internal/realtime"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

type createBoardRequest struct {
	Name            string               `json:"name" binding:"required,min=1,max=100"`
	Description     string               `json:"description" binding:"max=500"`
	Color           string               `json:"color" binding:"omitempty,hexcolor6"`
	BackgroundImage string               `json:"backgroundImage" binding:"omitempty,url"`
	IsPublic        bool                 `json:"isPublic"`
	Settings        *model.BoardSettings `json:"settings"`
}

type updateBoardRequest struct {
	Name            *string              `json:"name" binding:"omitempty,min=1,max=100"`
	Description     *string              `json:"description" binding:"omitempty,max=500"`
	Color           *string              `json:"color" binding:"omitempty,hexcolor6"`
	BackgroundImage *string              `json:"backgroundImage" binding:"omitempty,max=500"`
	IsPublic        *bool                `json:"isPublic"`
	Settings        *model.BoardSettings `json:"settings"`
}

// boardView 看板加上当前用户的成员关系。
type boardView struct {
	model.Board
	Membership *membershipView `json:"membership"`
}

func (s *Server) handleListBoards(c *gin.Context) {
	page, err := response.ParsePage(c)
	if err != nil {
		response.Fail(c, err)
		return
	}

	listings, total, err := s.store.ListBoardsForUser(c.Request.Context(), middleware.UserID(c), page)
	if err != nil {
		response.Fail(c, fmt.Errorf("list boards: %w", err))
		return
	}

	userID := middleware.UserID(c)
	boards := make([]boardView, 0, len(listings))
	for _, l := range listings {
		role := model.RoleMember
		if l.Membership != nil {
			role = l.Membership.Role
		}
		if l.Board.OwnerID == userID {
			role = model.RoleOwner
		}
		boards = append(boards, boardView{Board: l.Board, Membership: newMembershipView(role, l.Membership)})
	}

	response.OK(c, "", gin.H{
		"boards":     boards,
		"pagination": response.NewPagination(page, total),
	})
}

func (s *Server) handleCreateBoard(c *gin.Context) {
	var req createBoardRequest
	if !response.BindJSON(c, &req) {
		return
	}

	settings := model.DefaultBoardSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}
	board := &model.Board{
		Name:            req.Name,
		Description:     req.Description,
		Color:           req.Color,
		BackgroundImage: req.BackgroundImage,
		IsPublic:        req.IsPublic,
		Settings:        datatypes.NewJSONType(settings),
		OwnerID:         middleware.UserID(c),
	}

	owner, err := s.store.CreateBoardWithOwner(c.Request.Context(), board)
	if err != nil {
		response.Fail(c, fmt.Errorf("create board: %w", err))
		return
	}

	s.record(c, activity.Entry{
		Type:        model.ActivityBoardCreated,
		Description: fmt.Sprintf("Created board %q", board.Name),
		Metadata:    map[string]any{"boardName": board.Name},
		BoardID:     board.ID,
	})
	s.logger.Info("board created",
		slog.String("board_id", board.ID),
		slog.String("user_id", board.OwnerID),
	)

	response.Created(c, "Board created successfully", gin.H{
		"board": boardView{Board: *board, Membership: newMembershipView(model.RoleOwner, owner)},
	})
}

func (s *Server) handleGetBoard(c *gin.Context) {
	d := middleware.Decision(c)
	board, err := s.store.BoardContent(c.Request.Context(), d.BoardID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, "", gin.H{"board": boardView{Board: *board, Membership: decisionView(d)}})
}

func (s *Server) handleUpdateBoard(c *gin.Context) {
	var req updateBoardRequest
	if !response.BindJSON(c, &req) {
		return
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Color != nil {
		updates["color"] = *req.Color
	}
	if req.BackgroundImage != nil {
		updates["background_image"] = *req.BackgroundImage
	}
	if req.IsPublic != nil {
		updates["is_public"] = *req.IsPublic
	}
	if req.Settings != nil {
		updates["settings"] = datatypes.NewJSONType(*req.Settings)
	}
	if len(updates) == 0 {
		response.Fail(c, apperr.Validation("No fields to update"))
		return
	}

	ctx := c.Request.Context()
	d := middleware.Decision(c)
	if err := s.store.UpdateBoard(ctx, d.BoardID, updates); err != nil {
		response.Fail(c, fmt.Errorf("update board: %w", err))
		return
	}
	board, err := s.store.BoardByID(ctx, d.BoardID)
	if err != nil {
		response.Fail(c, err)
		return
	}

	s.record(c, activity.Entry{
		Type:        model.ActivityBoardUpdated,
		Description: fmt.Sprintf("Updated board %q", board.Name),
		Metadata:    map[string]any{"changes": changedKeys(updates)},
		BoardID:     board.ID,
	})
	s.touchBoard(ctx, board.ID)
	s.broadcast(c, realtime.EventBoardUpdated, board.ID, gin.H{"board": board})

	response.OK(c, "Board updated successfully", gin.H{"board": boardView{Board: *board, Membership: decisionView(d)}})
}

func (s *Server) handleArchiveBoard(c *gin.Context) {
	s.setBoardArchived(c, true)
}

func (s *Server) handleRestoreBoard(c *gin.Context) {
	s.setBoardArchived(c, false)
}

func (s *Server) setBoardArchived(c *gin.Context, archived bool) {
	ctx := c.Request.Context()
	d := middleware.Decision(c)
	if err := s.store.SetBoardArchived(ctx, d.BoardID, archived); err != nil {
		response.Fail(c, fmt.Errorf("archive board: %w", err))
		return
	}

	typ, verb, msg := model.ActivityBoardArchived, "Archived", "Board archived successfully"
	if !archived {
		typ, verb, msg = model.ActivityBoardRestored, "Restored", "Board restored successfully"
	}
	s.record(c, activity.Entry{
		Type:        typ,
		Description: fmt.Sprintf("%s board %q", verb, d.Board.Name),
		Metadata:    map[string]any{"boardName": d.Board.Name},
		BoardID:     d.BoardID,
	})
	s.touchBoard(ctx, d.BoardID)

	board := *d.Board
	board.IsArchived = archived
	s.broadcast(c, realtime.EventBoardUpdated, d.BoardID, gin.H{"board": board})
	response.OK(c, msg, gin.H{"board": board})
}

func (s *Server) handleBoardActivities(c *gin.Context) {
	d := middleware.Decision(c)
	activities, err := s.store.ActivitiesByBoard(c.Request.Context(), d.BoardID, response.QueryLimit(c, 50, 100))
	if err != nil {
		response.Fail(c, fmt.Errorf("list activities: %w", err))
		return
	}
	response.OK(c, "", gin.H{"activities": activities})
}

// handlePresence 返回本实例上当前在线的用户。
func (s *Server) handlePresence(c *gin.Context) {
	d := middleware.Decision(c)
	response.OK(c, "", gin.H{"users": s.hub.Presence(d.BoardID)})
}

func changedKeys(updates map[string]any) []string {
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
