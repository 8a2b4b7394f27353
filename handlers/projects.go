package handlers

import (
	"net/http"
	"strconv"

	"pillar-api/events"
	"pillar-api/globals"
	"pillar-api/repository"
	"pillar-api/types"

	"github.com/gin-gonic/gin"
)

type ProjectsHandler struct {
	projectsRepo *repository.ProjectsRepository
	usersRepo    *repository.UsersRepository
	emitter      *events.Emitter
}

func NewProjectsHandler(projectsRepo *repository.ProjectsRepository, usersRepo *repository.UsersRepository, emitter *events.Emitter) *ProjectsHandler {
	return &ProjectsHandler{projectsRepo: projectsRepo, usersRepo: usersRepo, emitter: emitter}
}

func (h *ProjectsHandler) CreateProject(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, err.Error()))
		return
	}
	userID := c.GetInt("userId")

	project, err := h.projectsRepo.CreateProject(req.Name, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusCreated, types.NewSuccessResponse(project))

	h.emitter.Emit(types.EntityProject, types.ActionCreated, userID, c.GetHeader(globals.SessionHeader), project.ID, &project.ID,
		types.ProjectSnapshot{ID: project.ID, Name: project.Name, OwnerID: project.OwnerID})
}

func (h *ProjectsHandler) GetProjects(c *gin.Context) {
	userID := c.GetInt("userId")
	projects, err := h.projectsRepo.GetProjectsForUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(projects))
}

func (h *ProjectsHandler) UpdateProject(c *gin.Context) {
	projectID, ok := h.requireOwner(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, err.Error()))
		return
	}
	if err := h.projectsRepo.UpdateProjectName(projectID, req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	project, err := h.projectsRepo.GetProjectByID(projectID)
	if err != nil || project == nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, "Project reload failed"))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(project))

	userID := c.GetInt("userId")
	h.emitter.Emit(types.EntityProject, types.ActionUpdated, userID, c.GetHeader(globals.SessionHeader), project.ID, &project.ID,
		types.ProjectSnapshot{ID: project.ID, Name: project.Name, OwnerID: project.OwnerID})
}

func (h *ProjectsHandler) DeleteProject(c *gin.Context) {
	projectID, ok := h.requireOwner(c)
	if !ok {
		return
	}
	if err := h.projectsRepo.SetProjectDeleted(projectID, true); err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(gin.H{"message": "Project deleted successfully"}))

	userID := c.GetInt("userId")
	h.emitter.Emit(types.EntityProject, types.ActionDeleted, userID, c.GetHeader(globals.SessionHeader), projectID, &projectID, nil)
}

func (h *ProjectsHandler) GetMembers(c *gin.Context) {
	projectID, err := strconv.Atoi(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "Invalid project ID"))
		return
	}
	userID := c.GetInt("userId")
	roleID, err := h.projectsRepo.GetUserRoleIDInProject(userID, projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	if roleID == 0 {
		c.JSON(http.StatusForbidden, types.NewErrorResponse(types.ErrorCodeForbidden, "No access to the project"))
		return
	}
	members, err := h.projectsRepo.GetMembers(projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(members))
}

func (h *ProjectsHandler) AddMember(c *gin.Context) {
	projectID, ok := h.requireOwner(c)
	if !ok {
		return
	}
	var req struct {
		Username string `json:"username" binding:"required"`
		RoleID   int    `json:"roleId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, err.Error()))
		return
	}
	if req.RoleID == 0 {
		req.RoleID = globals.DefaultEditorRoleID
	}
	if req.RoleID == globals.DefaultOwnerRoleID {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "Cannot grant the owner role"))
		return
	}
	user, err := h.usersRepo.GetUserByUsername(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCodeNotFound, "User not found"))
		return
	}
	member, err := h.projectsRepo.AddMember(user.ID, projectID, req.RoleID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusCreated, types.NewSuccessResponse(member))

	actorID := c.GetInt("userId")
	h.emitter.Emit(types.EntityMember, types.ActionCreated, actorID, c.GetHeader(globals.SessionHeader), member.UserID, &projectID,
		types.MemberSnapshot{UserID: member.UserID, ProjectID: member.ProjectID, RoleID: member.RoleID, Username: member.Username})
}

func (h *ProjectsHandler) RemoveMember(c *gin.Context) {
	projectID, err := strconv.Atoi(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "Invalid project ID"))
		return
	}
	memberID, err := strconv.Atoi(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "Invalid user ID"))
		return
	}
	actorID := c.GetInt("userId")

	roleID, err := h.projectsRepo.GetUserRoleIDInProject(actorID, projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	// Owners remove anyone; everyone else may only leave.
	if roleID != globals.DefaultOwnerRoleID && actorID != memberID {
		c.JSON(http.StatusForbidden, types.NewErrorResponse(types.ErrorCodeForbidden, "No permission to remove the member"))
		return
	}
	project, err := h.projectsRepo.GetProjectByID(projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	if project != nil && project.OwnerID == memberID {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "The owner cannot be removed"))
		return
	}

	removed, err := h.projectsRepo.RemoveMember(memberID, projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCodeNotFound, "Member not found"))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(gin.H{"message": "Member removed successfully"}))

	// Membership is re-read at emit time, so the removed user is already
	// out of the recipient list.
	h.emitter.Emit(types.EntityMember, types.ActionDeleted, actorID, c.GetHeader(globals.SessionHeader), memberID, &projectID, nil)
}

// requireOwner parses :projectId and verifies the caller owns the project.
// Responds with the appropriate error and returns ok=false otherwise.
func (h *ProjectsHandler) requireOwner(c *gin.Context) (int, bool) {
	projectID, err := strconv.Atoi(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "Invalid project ID"))
		return 0, false
	}
	userID := c.GetInt("userId")
	roleID, err := h.projectsRepo.GetUserRoleIDInProject(userID, projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return 0, false
	}
	if roleID != globals.DefaultOwnerRoleID {
		c.JSON(http.StatusForbidden, types.NewErrorResponse(types.ErrorCodeForbidden, "Owner role required"))
		return 0, false
	}
	return projectID, true
}
