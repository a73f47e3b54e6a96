package api

import (
	"errors"
	"fmt"

	"kanbanhub/internal/activity"
	"kanbanhub/internal/api/middleware"
	"kanbanhub/internal/api/response"
	"kanbanhub/internal/apperr"
	"kanbanhub/internal/model"
	"kanbanhub/internal/permission"
	"kanbanhub/internal/pkg/notify"
	"kanbanhub/internal/realtime"
	"kanbanhub/internal/store"

	"github.com/gin-gonic/gin"
)

type addMemberRequest struct {
	Email       string             `json:"email" binding:"required,email"`
	Role        model.Role         `json:"role" binding:"omitempty,oneof=admin member viewer"`
	Permissions *model.Permissions `json:"permissions"`
}

type updateMemberRequest struct {
	Role        model.Role         `json:"role" binding:"required,oneof=admin member viewer"`
	Permissions *model.Permissions `json:"permissions"`
}

func (s *Server) handleListMembers(c *gin.Context) {
	d := middleware.Decision(c)
	members, err := s.store.ListMembers(c.Request.Context(), d.BoardID)
	if err != nil {
		response.Fail(c, fmt.Errorf("list members: %w", err))
		return
	}
	response.OK(c, "", gin.H{"members": members})
}

func (s *Server) handleAddMember(c *gin.Context) {
	var req addMemberRequest
	if !response.BindJSON(c, &req) {
		return
	}
	if req.Role == "" {
		req.Role = model.RoleMember
	}

	ctx := c.Request.Context()
	d := middleware.Decision(c)
	invitee, err := s.store.UserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Fail(c, apperr.NotFound("User not found"))
			return
		}
		response.Fail(c, fmt.Errorf("load user: %w", err))
		return
	}
	if !invitee.IsActive {
		response.Fail(c, apperr.NotFound("User not found"))
		return
	}
	if invitee.ID == d.Board.OwnerID {
		response.Fail(c, apperr.Conflict("User is already a member of this board"))
		return
	}

	inviterID := middleware.UserID(c)
	m := store.NewMembership(d.BoardID, invitee.ID, req.Role, req.Permissions)
	if err := canGrant(d, req.Role, m.Permissions.Data()); err != nil {
		response.Fail(c, err)
		return
	}
	m.InvitedByID = &inviterID
	if err := s.store.AddMember(ctx, m); err != nil {
		if errors.Is(err, store.ErrConflict) {
			response.Fail(c, apperr.Conflict("User is already a member of this board"))
			return
		}
		response.Fail(c, fmt.Errorf("add member: %w", err))
		return
	}
	m.User = invitee

	s.record(c, activity.Entry{
		Type:        model.ActivityMemberAdded,
		Description: fmt.Sprintf("Added %s to the board as %s", invitee.FullName(), req.Role),
		Metadata:    map[string]any{"memberId": invitee.ID, "memberEmail": invitee.Email, "role": req.Role},
		BoardID:     d.BoardID,
	})
	s.touchBoard(ctx, d.BoardID)
	s.broadcast(c, realtime.EventMemberAdded, d.BoardID, gin.H{"member": m})
	_ = s.notifier.BoardInvitation(ctx, notify.BoardInvitation{
		Invitee:   invitee,
		InvitedBy: middleware.CurrentUser(c),
		Board:     d.Board,
		Role:      req.Role,
	})

	response.Created(c, "Member added successfully", gin.H{"member": m})
}

func (s *Server) handleUpdateMember(c *gin.Context) {
	var req updateMemberRequest
	if !response.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	d := middleware.Decision(c)
	userID := c.Param("userId")
	if userID == d.Board.OwnerID {
		response.Fail(c, apperr.Forbidden("Cannot change the board owner's membership"))
		return
	}
	if userID == middleware.UserID(c) {
		response.Fail(c, apperr.Forbidden("Cannot change your own membership"))
		return
	}

	current, err := s.store.MembershipFor(ctx, d.BoardID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Fail(c, apperr.NotFound("Member not found"))
			return
		}
		response.Fail(c, fmt.Errorf("load member: %w", err))
		return
	}
	if current.Role.Wildcard() && !d.Role().Wildcard() {
		response.Fail(c, apperr.Forbidden("Only board admins can change an admin's membership"))
		return
	}

	perms := model.DefaultPermissions(req.Role)
	if req.Permissions != nil {
		perms = *req.Permissions
	}
	if err := canGrant(d, req.Role, perms); err != nil {
		response.Fail(c, err)
		return
	}
	if err := s.store.UpdateMember(ctx, d.BoardID, userID, req.Role, perms); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Fail(c, apperr.NotFound("Member not found"))
			return
		}
		response.Fail(c, fmt.Errorf("update member: %w", err))
		return
	}
	m, err := s.store.MembershipFor(ctx, d.BoardID, userID)
	if err != nil {
		response.Fail(c, err)
		return
	}

	s.record(c, activity.Entry{
		Type:        model.ActivityMemberRoleChanged,
		Description: fmt.Sprintf("Changed member role to %s", req.Role),
		Metadata:    map[string]any{"memberId": userID, "role": req.Role},
		BoardID:     d.BoardID,
	})
	s.touchBoard(ctx, d.BoardID)

	response.OK(c, "Member updated successfully", gin.H{"member": m})
}

func (s *Server) handleRemoveMember(c *gin.Context) {
	ctx := c.Request.Context()
	d := middleware.Decision(c)
	userID := c.Param("userId")
	if userID == d.Board.OwnerID {
		response.Fail(c, apperr.Forbidden("Cannot remove the board owner"))
		return
	}

	if err := s.store.DeactivateMember(ctx, d.BoardID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Fail(c, apperr.NotFound("Member not found"))
			return
		}
		response.Fail(c, fmt.Errorf("remove member: %w", err))
		return
	}

	s.record(c, activity.Entry{
		Type:        model.ActivityMemberRemoved,
		Description: "Removed a member from the board",
		Metadata:    map[string]any{"memberId": userID},
		BoardID:     d.BoardID,
	})
	s.touchBoard(ctx, d.BoardID)
	s.broadcast(c, realtime.EventMemberRemoved, d.BoardID, gin.H{"userId": userID})

	response.OK(c, "Member removed successfully", nil)
}

// canGrant 非所有者、非管理员只能授予自己已有的能力，且不能授予 admin。
func canGrant(d *permission.Decision, role model.Role, perms model.Permissions) error {
	if d.Role().Wildcard() {
		return nil
	}
	if role.Wildcard() {
		return apperr.Forbidden("Only board admins can grant the admin role")
	}
	var own model.Permissions
	if d.Membership != nil {
		own = d.Membership.Permissions.Data()
	}
	if !own.Covers(perms) {
		return apperr.Forbidden("Cannot grant permissions you do not have")
	}
	return nil
}
