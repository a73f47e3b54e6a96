package api

import (
	"errors"
	"fmt"
	"time"

	"kanbanhub/internal/activity"
	"kanbanhub/internal/api/middleware"
	"kanbanhub/internal/api/response"
	"kanbanhub/internal/apperr"
	"kanbanhub/internal/model"
	"kanbanhub/internal/realtime"
	"kanbanhub/internal/store"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

type createColumnRequest struct {
	BoardID     string                `json:"boardId"`
	Name        string                `json:"name" binding:"required,min=1,max=100"`
	Description string                `json:"description" binding:"max=500"`
	Color       string                `json:"color" binding:"omitempty,hexcolor6"`
	Position    *int                  `json:"position" binding:"omitempty,min=0"`
	CardLimit   *int                  `json:"cardLimit" binding:"omitempty,min=1"`
	Settings    *model.ColumnSettings `json:"settings"`
}

type updateColumnRequest struct {
	Name        *string               `json:"name" binding:"omitempty,min=1,max=100"`
	Description *string               `json:"description" binding:"omitempty,max=500"`
	Color       *string               `json:"color" binding:"omitempty,hexcolor6"`
	Position    *int                  `json:"position" binding:"omitempty,min=0"`
	IsCollapsed *bool                 `json:"isCollapsed"`
	CardLimit   *int                  `json:"cardLimit" binding:"omitempty,min=1"`
	Settings    *model.ColumnSettings `json:"settings"`
}

type columnPositionsRequest struct {
	BoardID string                 `json:"boardId" binding:"required"`
	Columns []store.ColumnPosition `json:"columns" binding:"required,min=1,dive"`
}

func (s *Server) handleListColumns(c *gin.Context) {
	d := middleware.Decision(c)
	withCards := c.DefaultQuery("includeCards", "true") != "false"
	columns, err := s.store.ColumnsByBoard(c.Request.Context(), d.BoardID, withCards)
	if err != nil {
		response.Fail(c, fmt.Errorf("list columns: %w", err))
		return
	}
	response.OK(c, "", gin.H{"columns": columns})
}

func (s *Server) handleCreateColumn(c *gin.Context) {
	var req createColumnRequest
	if !response.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	d := middleware.Decision(c)
	settings := model.DefaultColumnSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}

	next, err := s.store.NextColumnPosition(ctx, d.BoardID)
	if err != nil {
		response.Fail(c, fmt.Errorf("next column position: %w", err))
		return
	}
	col := &model.Column{
		BoardID:     d.BoardID,
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		Position:    next,
		CardLimit:   req.CardLimit,
		Settings:    datatypes.NewJSONType(settings),
	}
	if err := s.store.CreateColumn(ctx, col); err != nil {
		response.Fail(c, fmt.Errorf("create column: %w", err))
		return
	}
	// 指定位置时先追加再插入到目标位置
	if req.Position != nil && *req.Position < next {
		pos, err := s.columns.Move(ctx, col.ID, col.BoardID, *req.Position)
		if err != nil {
			response.Fail(c, fmt.Errorf("position column: %w", err))
			return
		}
		col.Position = pos
	}

	s.record(c, activity.Entry{
		Type:        model.ActivityColumnCreated,
		Description: fmt.Sprintf("Created column %q", col.Name),
		Metadata:    map[string]any{"columnName": col.Name, "position": col.Position},
		BoardID:     col.BoardID,
		ColumnID:    col.ID,
	})
	s.touchBoard(ctx, col.BoardID)
	s.broadcast(c, realtime.EventColumnCreated, col.BoardID, gin.H{"column": col})

	response.Created(c, "Column created successfully", gin.H{"column": col})
}

func (s *Server) handleGetColumn(c *gin.Context) {
	col, err := s.store.ColumnWithCards(c.Request.Context(), c.Param("columnId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Fail(c, apperr.NotFound("Column not found"))
			return
		}
		response.Fail(c, err)
		return
	}
	response.OK(c, "", gin.H{"column": col})
}

func (s *Server) handleUpdateColumn(c *gin.Context) {
	var req updateColumnRequest
	if !response.BindJSON(c, &req) {
		return
	}
	col, ok := s.loadColumn(c)
	if !ok {
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
	if req.IsCollapsed != nil {
		updates["is_collapsed"] = *req.IsCollapsed
	}
	if req.CardLimit != nil {
		updates["card_limit"] = *req.CardLimit
	}
	if req.Settings != nil {
		updates["settings"] = datatypes.NewJSONType(*req.Settings)
	}
	if len(updates) == 0 && req.Position == nil {
		response.Fail(c, apperr.Validation("No fields to update"))
		return
	}

	ctx := c.Request.Context()
	if err := s.store.UpdateColumn(ctx, col.ID, updates); err != nil {
		response.Fail(c, fmt.Errorf("update column: %w", err))
		return
	}
	metadata := map[string]any{"changes": changedKeys(updates)}
	if req.Position != nil {
		pos, err := s.columns.Move(ctx, col.ID, col.BoardID, *req.Position)
		if err != nil {
			response.Fail(c, fmt.Errorf("move column: %w", err))
			return
		}
		metadata["fromPosition"] = col.Position
		metadata["toPosition"] = pos
	}

	updated, err := s.store.ColumnByID(ctx, col.ID)
	if err != nil {
		response.Fail(c, err)
		return
	}

	s.record(c, activity.Entry{
		Type:        model.ActivityColumnUpdated,
		Description: fmt.Sprintf("Updated column %q", updated.Name),
		Metadata:    metadata,
		BoardID:     updated.BoardID,
		ColumnID:    updated.ID,
	})
	s.touchBoard(ctx, updated.BoardID)
	s.broadcast(c, realtime.EventColumnUpdated, updated.BoardID, gin.H{"column": updated})

	response.OK(c, "Column updated successfully", gin.H{"column": updated})
}

// handleColumnPositions 批量写入列位置，整个请求在一个事务中完成。
func (s *Server) handleColumnPositions(c *gin.Context) {
	var req columnPositionsRequest
	if !response.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if err := s.store.BulkSetColumnPositions(ctx, req.BoardID, req.Columns); err != nil {
		switch {
		case errors.Is(err, store.ErrColumnBoardMismatch):
			response.Fail(c, apperr.Validation("All columns must belong to the same board"))
		case errors.Is(err, store.ErrNotFound):
			response.Fail(c, apperr.NotFound("Column not found"))
		default:
			response.Fail(c, fmt.Errorf("update column positions: %w", err))
		}
		return
	}

	columns, err := s.store.ColumnsByBoard(ctx, req.BoardID, false)
	if err != nil {
		response.Fail(c, err)
		return
	}

	s.record(c, activity.Entry{
		Type:        model.ActivityColumnUpdated,
		Description: "Reordered columns",
		Metadata:    map[string]any{"reordered": true, "columnPositions": req.Columns},
		BoardID:     req.BoardID,
	})
	s.touchBoard(ctx, req.BoardID)
	s.broadcast(c, realtime.EventColumnsReordered, req.BoardID, gin.H{"columns": columns})

	response.OK(c, "Column positions updated successfully", gin.H{"columns": columns})
}

func (s *Server) handleArchiveColumn(c *gin.Context) {
	col, ok := s.loadColumn(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := s.store.ArchiveColumn(ctx, col.ID); err != nil {
		response.Fail(c, fmt.Errorf("archive column: %w", err))
		return
	}

	s.record(c, activity.Entry{
		Type:        model.ActivityColumnArchived,
		Description: fmt.Sprintf("Archived column %q", col.Name),
		Metadata:    map[string]any{"columnName": col.Name},
		BoardID:     col.BoardID,
		ColumnID:    col.ID,
	})
	s.touchBoard(ctx, col.BoardID)
	s.broadcast(c, realtime.EventColumnDeleted, col.BoardID, gin.H{"columnId": col.ID})

	response.OK(c, "Column archived successfully", nil)
}

// handleRestoreColumn 只恢复列，其中的卡片保持归档。
func (s *Server) handleRestoreColumn(c *gin.Context) {
	col, ok := s.loadColumn(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := s.store.RestoreColumn(ctx, col.ID); err != nil {
		response.Fail(c, fmt.Errorf("restore column: %w", err))
		return
	}
	col.IsArchived = false

	s.record(c, activity.Entry{
		Type:        model.ActivityColumnRestored,
		Description: fmt.Sprintf("Restored column %q", col.Name),
		Metadata:    map[string]any{"columnName": col.Name},
		BoardID:     col.BoardID,
		ColumnID:    col.ID,
	})
	s.touchBoard(ctx, col.BoardID)
	s.broadcast(c, realtime.EventColumnCreated, col.BoardID, gin.H{"column": col})

	response.OK(c, "Column restored successfully", gin.H{"column": col})
}

func (s *Server) handleColumnStats(c *gin.Context) {
	col, ok := s.loadColumn(c)
	if !ok {
		return
	}
	stats, err := s.store.ColumnStats(c.Request.Context(), col.ID, time.Now())
	if err != nil {
		response.Fail(c, fmt.Errorf("column stats: %w", err))
		return
	}
	response.OK(c, "", gin.H{
		"stats": gin.H{
			"totalCards":        stats.TotalCards,
			"completedCards":    stats.CompletedCards,
			"overdueCards":      stats.OverdueCards,
			"progress":          stats.Progress,
			"priorityBreakdown": stats.PriorityBreakdown,
		},
		"recentActivity": stats.RecentActivity,
	})
}

func (s *Server) handleColumnActivities(c *gin.Context) {
	activities, err := s.store.ActivitiesByColumn(c.Request.Context(), c.Param("columnId"), response.QueryLimit(c, 50, 100))
	if err != nil {
		response.Fail(c, fmt.Errorf("list activities: %w", err))
		return
	}
	response.OK(c, "", gin.H{"activities": activities})
}
