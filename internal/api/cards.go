package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"kanbanhub/internal/activity"
	"kanbanhub/internal/api/middleware"
	"kanbanhub/internal/api/response"
	"kanbanhub/internal/apperr"
	"kanbanhub/internal/model"
	"kanbanhub/internal/pkg/notify"
	"kanbanhub/internal/realtime"
	"kanbanhub/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type createCardRequest struct {
	ColumnID    string              `json:"columnId" binding:"required"`
	Title       string              `json:"title" binding:"required,min=1,max=200"`
	Description string              `json:"description" binding:"max=5000"`
	Position    *int                `json:"position" binding:"omitempty,min=0"`
	Priority    model.Priority      `json:"priority" binding:"omitempty,oneof=low medium high urgent"`
	DueDate     *time.Time          `json:"dueDate"`
	CoverColor  string              `json:"coverColor" binding:"omitempty,hexcolor6"`
	Labels      []model.Label       `json:"labels" binding:"omitempty,dive"`
	Metadata    *model.CardMetadata `json:"metadata"`
}

type updateCardRequest struct {
	Title       *string             `json:"title" binding:"omitempty,min=1,max=200"`
	Description *string             `json:"description" binding:"omitempty,max=5000"`
	Position    *int                `json:"position" binding:"omitempty,min=0"`
	Priority    *model.Priority     `json:"priority" binding:"omitempty,oneof=low medium high urgent"`
	DueDate     optionalTime        `json:"dueDate"`
	IsCompleted *bool               `json:"isCompleted"`
	CoverColor  *string             `json:"coverColor" binding:"omitempty,hexcolor6"`
	CoverImage  *string             `json:"coverImage" binding:"omitempty,max=500"`
	Labels      []model.Label       `json:"labels" binding:"omitempty,dive"`
	Checklists  []model.Checklist   `json:"checklists"`
	Metadata    *model.CardMetadata `json:"metadata"`
}

// optionalTime 区分字段缺失与显式 null。
type optionalTime struct {
	Set   bool
	Value *time.Time
}

func (o *optionalTime) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(b, []byte("null")) {
		o.Value = nil
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	o.Value = &t
	return nil
}

type moveCardRequest struct {
	TargetColumnID string `json:"targetColumnId" binding:"required"`
	NewPosition    *int   `json:"newPosition" binding:"required,min=0"`
}

type assignCardRequest struct {
	UserID string               `json:"userId" binding:"required"`
	Role   model.AssignmentRole `json:"role" binding:"omitempty,oneof=assignee reviewer watcher"`
}

type commentRequest struct {
	Text string `json:"text" binding:"required,min=1,max=2000"`
}

// handleListCards 按 columnId 或 boardId 分页列出卡片，看板在这里自行解析。
func (s *Server) handleListCards(c *gin.Context) {
	page, err := response.ParsePage(c)
	if err != nil {
		response.Fail(c, err)
		return
	}

	ctx := c.Request.Context()
	filter := store.CardFilter{
		ColumnID:        c.Query("columnId"),
		BoardID:         c.Query("boardId"),
		IncludeArchived: c.Query("includeArchived") == "true",
	}
	boardID := filter.BoardID
	if filter.ColumnID != "" {
		col, err := s.store.ColumnByID(ctx, filter.ColumnID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Fail(c, apperr.NotFound("Column not found"))
				return
			}
			response.Fail(c, err)
			return
		}
		boardID = col.BoardID
	}
	if boardID == "" {
		response.Fail(c, apperr.Validation("Validation failed", apperr.FieldError{
			Field:   "columnId",
			Message: "columnId or boardId is required",
		}))
		return
	}
	if _, err := s.resolver.Authorize(ctx, middleware.UserID(c), boardID, model.CapabilityNone); err != nil {
		response.Fail(c, err)
		return
	}

	cards, total, err := s.store.ListCards(ctx, filter, page)
	if err != nil {
		response.Fail(c, fmt.Errorf("list cards: %w", err))
		return
	}
	response.OK(c, "", gin.H{
		"cards":      cards,
		"pagination": response.NewPagination(page, total),
	})
}

func (s *Server) handleCardsByColumn(c *gin.Context) {
	cards, err := s.store.CardsByColumn(c.Request.Context(), c.Param("columnId"))
	if err != nil {
		response.Fail(c, fmt.Errorf("list cards: %w", err))
		return
	}
	response.OK(c, "", gin.H{"cards": cards})
}

func (s *Server) handleCreateCard(c *gin.Context) {
	var req createCardRequest
	if !response.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	col, err := s.store.ColumnByID(ctx, req.ColumnID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Fail(c, apperr.NotFound("Column not found"))
			return
		}
		response.Fail(c, err)
		return
	}
	if col.IsArchived {
		response.Fail(c, apperr.NotFound("Column not found"))
		return
	}
	// body 中的 boardId 优先于 columnId 参与定位，卡片落在列所属的看板上
	if _, ok := s.authorizeBoard(c, col.BoardID, model.CanCreateCards); !ok {
		return
	}

	count, err := s.store.CountActiveCards(ctx, col.ID)
	if err != nil {
		response.Fail(c, fmt.Errorf("count cards: %w", err))
		return
	}
	if !col.AcceptsCard(count) {
		if !col.Settings.Data().AllowNewCards {
			response.Fail(c, apperr.Conflict("Column does not allow new cards"))
			return
		}
		response.Fail(c, apperr.Conflict("Column card limit reached"))
		return
	}

	next, err := s.store.NextCardPosition(ctx, col.ID)
	if err != nil {
		response.Fail(c, fmt.Errorf("next card position: %w", err))
		return
	}
	card := &model.Card{
		Title:       req.Title,
		Description: req.Description,
		Position:    next,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
		CoverColor:  req.CoverColor,
		Labels:      datatypes.JSONSlice[model.Label](req.Labels),
		ColumnID:    col.ID,
		BoardID:     col.BoardID,
	}
	if req.Metadata != nil {
		card.Metadata = datatypes.NewJSONType(*req.Metadata)
	}
	if err := s.store.CreateCard(ctx, card); err != nil {
		response.Fail(c, fmt.Errorf("create card: %w", err))
		return
	}
	if req.Position != nil && *req.Position < next {
		if _, err := s.cards.Move(ctx, card.ID, col.ID, *req.Position); err != nil {
			response.Fail(c, fmt.Errorf("position card: %w", err))
			return
		}
	}

	created, err := s.store.CardByID(ctx, card.ID)
	if err != nil {
		response.Fail(c, err)
		return
	}

	s.record(c, activity.Entry{
		Type:        model.ActivityCardCreated,
		Description: fmt.Sprintf("Created card %q in %q", created.Title, col.Name),
		Metadata:    map[string]any{"cardTitle": created.Title, "columnName": col.Name},
		BoardID:     created.BoardID,
		ColumnID:    created.ColumnID,
		CardID:      created.ID,
	})
	s.touchBoard(ctx, created.BoardID)
	s.broadcast(c, realtime.EventCardCreated, created.BoardID, gin.H{"card": created})

	response.Created(c, "Card created successfully", gin.H{"card": created})
}

func (s *Server) handleGetCard(c *gin.Context) {
	card, _, ok := s.loadCard(c, model.CapabilityNone)
	if !ok {
		return
	}
	response.OK(c, "", gin.H{"card": card})
}

func (s *Server) handleUpdateCard(c *gin.Context) {
	var req updateCardRequest
	if !response.BindJSON(c, &req) {
		return
	}
	card, _, ok := s.loadCard(c, model.CanEditCards)
	if !ok {
		return
	}

	now := time.Now()
	updates := map[string]any{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Priority != nil {
		updates["priority"] = *req.Priority
	}
	if req.CoverColor != nil {
		updates["cover_color"] = *req.CoverColor
	}
	if req.CoverImage != nil {
		updates["cover_image"] = *req.CoverImage
	}
	if req.Labels != nil {
		updates["labels"] = datatypes.JSONSlice[model.Label](req.Labels)
	}
	if req.Checklists != nil {
		updates["checklists"] = datatypes.JSONSlice[model.Checklist](req.Checklists)
	}
	if req.Metadata != nil {
		updates["metadata"] = datatypes.NewJSONType(*req.Metadata)
	}
	if req.IsCompleted != nil && *req.IsCompleted != card.IsCompleted {
		updates["is_completed"] = *req.IsCompleted
		if *req.IsCompleted {
			updates["completed_at"] = now
		} else {
			updates["completed_at"] = nil
		}
	}
	if req.DueDate.Set {
		if req.DueDate.Value != nil {
			updates["due_date"] = *req.DueDate.Value
		} else {
			updates["due_date"] = nil
		}
	}
	if len(updates) == 0 && req.Position == nil {
		response.Fail(c, apperr.Validation("No fields to update"))
		return
	}

	ctx := c.Request.Context()
	if err := s.store.UpdateCard(ctx, card.ID, updates); err != nil {
		response.Fail(c, fmt.Errorf("update card: %w", err))
		return
	}
	if req.Position != nil {
		if _, err := s.cards.Move(ctx, card.ID, card.ColumnID, *req.Position); err != nil {
			response.Fail(c, fmt.Errorf("move card: %w", err))
			return
		}
	}

	updated, err := s.store.CardByID(ctx, card.ID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	for _, e := range cardChanges(card, updated, updates, req) {
		e.BoardID, e.ColumnID, e.CardID = updated.BoardID, updated.ColumnID, updated.ID
		s.record(c, e)
	}
	s.touchBoard(ctx, updated.BoardID)
	s.broadcast(c, realtime.EventCardUpdated, updated.BoardID, gin.H{"card": updated})

	response.OK(c, "Card updated successfully", gin.H{"card": updated})
}

// cardChanges 根据更新前后的卡片生成活动。
func cardChanges(before, after *model.Card, updates map[string]any, req updateCardRequest) []activity.Entry {
	var out []activity.Entry
	if len(updates) > 0 || req.Position != nil {
		meta := map[string]any{"cardTitle": after.Title, "changes": changedKeys(updates)}
		if req.Position != nil {
			meta["fromPosition"] = before.Position
			meta["toPosition"] = after.Position
		}
		out = append(out, activity.Entry{
			Type:        model.ActivityCardUpdated,
			Description: fmt.Sprintf("Updated card %q", after.Title),
			Metadata:    meta,
		})
	}

	if _, ok := updates["is_completed"]; ok {
		typ, verb := model.ActivityCardCompleted, "Completed"
		if !after.IsCompleted {
			typ, verb = model.ActivityCardReopened, "Reopened"
		}
		out = append(out, activity.Entry{
			Type:        typ,
			Description: fmt.Sprintf("%s card %q", verb, after.Title),
			Metadata:    map[string]any{"cardTitle": after.Title},
		})
	}

	if req.DueDate.Set {
		var typ model.ActivityType
		switch {
		case before.DueDate == nil && after.DueDate != nil:
			typ = model.ActivityDueDateSet
		case before.DueDate != nil && after.DueDate == nil:
			typ = model.ActivityDueDateRemoved
		case before.DueDate != nil && after.DueDate != nil && !before.DueDate.Equal(*after.DueDate):
			typ = model.ActivityDueDateUpdated
		}
		if typ != "" {
			out = append(out, activity.Entry{
				Type:        typ,
				Description: fmt.Sprintf("Changed due date of %q", after.Title),
				Metadata:    map[string]any{"cardTitle": after.Title, "from": before.DueDate, "to": after.DueDate},
			})
		}
	}

	if req.Labels != nil {
		added, removed := diffLabels(before.Labels, after.Labels)
		for _, l := range added {
			out = append(out, activity.Entry{
				Type:        model.ActivityLabelAdded,
				Description: fmt.Sprintf("Added label %q to %q", l.Name, after.Title),
				Metadata:    map[string]any{"cardTitle": after.Title, "label": l},
			})
		}
		for _, l := range removed {
			out = append(out, activity.Entry{
				Type:        model.ActivityLabelRemoved,
				Description: fmt.Sprintf("Removed label %q from %q", l.Name, after.Title),
				Metadata:    map[string]any{"cardTitle": after.Title, "label": l},
			})
		}
	}
	return out
}

// diffLabels 按 ID 比较标签。
func diffLabels(before, after []model.Label) (added, removed []model.Label) {
	has := func(list []model.Label, id string) bool {
		return slices.ContainsFunc(list, func(l model.Label) bool { return l.ID == id })
	}
	for _, l := range after {
		if !has(before, l.ID) {
			added = append(added, l)
		}
	}
	for _, l := range before {
		if !has(after, l.ID) {
			removed = append(removed, l)
		}
	}
	return added, removed
}

func (s *Server) handleMoveCard(c *gin.Context) {
	var req moveCardRequest
	if !response.BindJSON(c, &req) {
		return
	}
	card, _, ok := s.loadCard(c, model.CanMoveCards)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	target, err := s.store.ColumnByID(ctx, req.TargetColumnID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Fail(c, apperr.NotFound("Target column not found"))
			return
		}
		response.Fail(c, err)
		return
	}
	if target.IsArchived {
		response.Fail(c, apperr.NotFound("Target column not found"))
		return
	}
	if target.BoardID != card.BoardID {
		response.Fail(c, apperr.Validation("Cannot move a card to a column on another board"))
		return
	}
	source, err := s.store.ColumnByID(ctx, card.ColumnID)
	if err != nil {
		response.Fail(c, fmt.Errorf("load source column: %w", err))
		return
	}
	if !source.Settings.Data().AllowCardMovement {
		response.Fail(c, apperr.Forbidden("Cards cannot be moved out of this column"))
		return
	}
	if target.ID != source.ID {
		count, err := s.store.CountActiveCards(ctx, target.ID)
		if err != nil {
			response.Fail(c, fmt.Errorf("count cards: %w", err))
			return
		}
		if !target.AcceptsCard(count) {
			response.Fail(c, apperr.Conflict("Target column does not accept new cards"))
			return
		}
	}

	pos, err := s.cards.Move(ctx, card.ID, target.ID, *req.NewPosition)
	if err != nil {
		response.Fail(c, fmt.Errorf("move card: %w", err))
		return
	}
	moved, err := s.store.CardByID(ctx, card.ID)
	if err != nil {
		response.Fail(c, err)
		return
	}

	s.record(c, activity.Entry{
		Type:        model.ActivityCardMoved,
		Description: fmt.Sprintf("Moved card %q from %q to %q", moved.Title, source.Name, target.Name),
		Metadata: map[string]any{
			"cardTitle":    moved.Title,
			"fromColumn":   source.Name,
			"toColumn":     target.Name,
			"fromPosition": card.Position,
			"toPosition":   pos,
		},
		BoardID:  moved.BoardID,
		ColumnID: target.ID,
		CardID:   moved.ID,
	})
	s.touchBoard(ctx, moved.BoardID)
	s.broadcast(c, realtime.EventCardMoved, moved.BoardID, gin.H{
		"card":         moved,
		"fromColumnId": source.ID,
		"toColumnId":   target.ID,
		"newPosition":  pos,
	})

	response.OK(c, "Card moved successfully", gin.H{"card": moved})
}

func (s *Server) handleAssignCard(c *gin.Context) {
	var req assignCardRequest
	if !response.BindJSON(c, &req) {
		return
	}
	if req.Role == "" {
		req.Role = model.AssignmentAssignee
	}
	card, d, ok := s.loadCard(c, model.CanAssignCards)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	assignee, err := s.store.UserByID(ctx, req.UserID)
	if err != nil || !assignee.IsActive {
		if err == nil || errors.Is(err, store.ErrNotFound) {
			response.Fail(c, apperr.NotFound("User not found"))
			return
		}
		response.Fail(c, err)
		return
	}
	if assignee.ID != d.Board.OwnerID {
		if _, err := s.store.MembershipFor(ctx, card.BoardID, assignee.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Fail(c, apperr.Validation("User is not a member of this board"))
				return
			}
			response.Fail(c, err)
			return
		}
	}

	exists, err := s.store.AssignmentExists(ctx, card.ID, assignee.ID, req.Role)
	if err != nil {
		response.Fail(c, err)
		return
	}
	if exists {
		response.Fail(c, apperr.Conflict("User is already assigned to this card"))
		return
	}
	assignerID := middleware.UserID(c)
	a := &model.CardAssignment{
		CardID:       card.ID,
		UserID:       assignee.ID,
		Role:         req.Role,
		AssignedByID: &assignerID,
	}
	if err := s.store.CreateAssignment(ctx, a); err != nil {
		if errors.Is(err, store.ErrConflict) {
			response.Fail(c, apperr.Conflict("User is already assigned to this card"))
			return
		}
		response.Fail(c, fmt.Errorf("assign card: %w", err))
		return
	}
	a.User = assignee

	s.record(c, activity.Entry{
		Type:        model.ActivityCardAssigned,
		Description: fmt.Sprintf("Assigned %s to %q", assignee.FullName(), card.Title),
		Metadata:    map[string]any{"cardTitle": card.Title, "assigneeName": assignee.FullName(), "role": req.Role},
		BoardID:     card.BoardID,
		ColumnID:    card.ColumnID,
		CardID:      card.ID,
	})
	if req.Role == model.AssignmentAssignee {
		_ = s.notifier.CardAssigned(ctx, notify.CardAssignment{
			Assignee:   assignee,
			AssignedBy: middleware.CurrentUser(c),
			Card:       card,
			Board:      d.Board,
		})
	}
	s.touchBoard(ctx, card.BoardID)
	s.broadcastCard(c, card.ID)

	response.Created(c, "User assigned to card successfully", gin.H{"assignment": a})
}

func (s *Server) handleUnassignCard(c *gin.Context) {
	role := model.AssignmentRole(c.Query("role"))
	switch role {
	case "", model.AssignmentAssignee, model.AssignmentReviewer, model.AssignmentWatcher:
	default:
		response.Fail(c, apperr.Validation("Validation failed", apperr.FieldError{
			Field:   "role",
			Message: "role must be one of [assignee reviewer watcher]",
		}))
		return
	}
	card, _, ok := s.loadCard(c, model.CanAssignCards)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	userID := c.Param("userId")
	n, err := s.store.DeleteAssignments(ctx, card.ID, userID, role)
	if err != nil {
		response.Fail(c, fmt.Errorf("unassign card: %w", err))
		return
	}
	if n == 0 {
		response.Fail(c, apperr.NotFound("Assignment not found"))
		return
	}

	s.record(c, activity.Entry{
		Type:        model.ActivityCardUnassigned,
		Description: fmt.Sprintf("Removed a user from %q", card.Title),
		Metadata:    map[string]any{"cardTitle": card.Title, "userId": userID, "role": role},
		BoardID:     card.BoardID,
		ColumnID:    card.ColumnID,
		CardID:      card.ID,
	})
	s.touchBoard(ctx, card.BoardID)
	s.broadcastCard(c, card.ID)

	response.OK(c, "User removed from card successfully", nil)
}

func (s *Server) handleArchiveCard(c *gin.Context) {
	card, _, ok := s.loadCard(c, model.CanDeleteCards)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	col, err := s.store.ColumnByID(ctx, card.ColumnID)
	if err != nil {
		response.Fail(c, fmt.Errorf("load column: %w", err))
		return
	}
	if !col.Settings.Data().AllowCardDeletion {
		response.Fail(c, apperr.Forbidden("Cards cannot be deleted from this column"))
		return
	}
	if err := s.store.SetCardArchived(ctx, card.ID, true); err != nil {
		response.Fail(c, fmt.Errorf("archive card: %w", err))
		return
	}

	s.record(c, activity.Entry{
		Type:        model.ActivityCardArchived,
		Description: fmt.Sprintf("Archived card %q", card.Title),
		Metadata:    map[string]any{"cardTitle": card.Title, "columnName": col.Name},
		BoardID:     card.BoardID,
		ColumnID:    card.ColumnID,
		CardID:      card.ID,
	})
	s.touchBoard(ctx, card.BoardID)
	s.broadcast(c, realtime.EventCardDeleted, card.BoardID, gin.H{"cardId": card.ID, "columnId": card.ColumnID})

	response.OK(c, "Card archived successfully", nil)
}

func (s *Server) handleAddComment(c *gin.Context) {
	var req commentRequest
	if !response.BindJSON(c, &req) {
		return
	}
	card, d, ok := s.loadCard(c, model.CanComment)
	if !ok {
		return
	}
	if !d.Board.Settings.Data().AllowComments {
		response.Fail(c, apperr.Forbidden("Comments are disabled on this board"))
		return
	}

	comment := model.Comment{
		ID:        uuid.NewString(),
		UserID:    middleware.UserID(c),
		Text:      req.Text,
		CreatedAt: time.Now().UTC(),
	}
	comments := append(slices.Clone([]model.Comment(card.Comments)), comment)

	ctx := c.Request.Context()
	if err := s.store.UpdateCard(ctx, card.ID, map[string]any{"comments": datatypes.JSONSlice[model.Comment](comments)}); err != nil {
		response.Fail(c, fmt.Errorf("add comment: %w", err))
		return
	}

	s.record(c, activity.Entry{
		Type:        model.ActivityCommentAdded,
		Description: fmt.Sprintf("Commented on %q", card.Title),
		Metadata:    map[string]any{"cardTitle": card.Title, "commentId": comment.ID},
		BoardID:     card.BoardID,
		ColumnID:    card.ColumnID,
		CardID:      card.ID,
	})
	s.touchBoard(ctx, card.BoardID)
	s.broadcastCard(c, card.ID)

	response.Created(c, "Comment added successfully", gin.H{"comment": comment})
}

func (s *Server) handleVote(c *gin.Context) {
	s.setVote(c, true)
}

func (s *Server) handleUnvote(c *gin.Context) {
	s.setVote(c, false)
}

func (s *Server) setVote(c *gin.Context, add bool) {
	card, d, ok := s.loadCard(c, model.CanVote)
	if !ok {
		return
	}
	if !d.Board.Settings.Data().AllowVoting {
		response.Fail(c, apperr.Forbidden("Voting is disabled on this board"))
		return
	}

	userID := middleware.UserID(c)
	votes := card.Votes.Data()
	voted := slices.Contains(votes.Voters, userID)
	switch {
	case add && voted:
		response.Fail(c, apperr.Conflict("You have already voted on this card"))
		return
	case !add && !voted:
		response.Fail(c, apperr.NotFound("Vote not found"))
		return
	}
	if add {
		votes.Voters = append(slices.Clone(votes.Voters), userID)
	} else {
		votes.Voters = slices.DeleteFunc(slices.Clone(votes.Voters), func(id string) bool { return id == userID })
	}
	votes.Count = len(votes.Voters)

	ctx := c.Request.Context()
	if err := s.store.UpdateCard(ctx, card.ID, map[string]any{"votes": datatypes.NewJSONType(votes)}); err != nil {
		response.Fail(c, fmt.Errorf("update votes: %w", err))
		return
	}

	typ, msg := model.ActivityVoteAdded, "Vote added successfully"
	if !add {
		typ, msg = model.ActivityVoteRemoved, "Vote removed successfully"
	}
	s.record(c, activity.Entry{
		Type:        typ,
		Description: fmt.Sprintf("Voted on %q", card.Title),
		Metadata:    map[string]any{"cardTitle": card.Title, "votes": votes.Count},
		BoardID:     card.BoardID,
		ColumnID:    card.ColumnID,
		CardID:      card.ID,
	})
	s.touchBoard(ctx, card.BoardID)
	s.broadcastCard(c, card.ID)

	response.OK(c, msg, gin.H{"votes": votes})
}

func (s *Server) handleCardActivities(c *gin.Context) {
	card, _, ok := s.loadCard(c, model.CapabilityNone)
	if !ok {
		return
	}
	activities, err := s.store.ActivitiesByCard(c.Request.Context(), card.ID, response.QueryLimit(c, 50, 100))
	if err != nil {
		response.Fail(c, fmt.Errorf("list activities: %w", err))
		return
	}
	response.OK(c, "", gin.H{"activities": activities})
}

// broadcastCard 重新加载卡片并广播 card-updated。
func (s *Server) broadcastCard(c *gin.Context, cardID string) {
	card, err := s.store.CardByID(c.Request.Context(), cardID)
	if err != nil {
		s.logger.Warn("reload card for broadcast failed",
			slog.String("card_id", cardID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.broadcast(c, realtime.EventCardUpdated, card.BoardID, gin.H{"card": card})
}
