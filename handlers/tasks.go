package handlers

import (
	"net/http"
	"strconv"
	"time"

	"pillar-api/events"
	"pillar-api/globals"
	"pillar-api/models"
	"pillar-api/repository"
	"pillar-api/types"

	"github.com/gin-gonic/gin"
)

type TasksHandler struct {
	tasksRepo    *repository.TasksRepository
	projectsRepo *repository.ProjectsRepository
	emitter      *events.Emitter
}

func NewTasksHandler(tasksRepo *repository.TasksRepository, projectsRepo *repository.ProjectsRepository, emitter *events.Emitter) *TasksHandler {
	return &TasksHandler{tasksRepo: tasksRepo, projectsRepo: projectsRepo, emitter: emitter}
}

// canEditProject reports whether the role may mutate project content.
// Viewers can read, not write.
func canEditProject(roleID int) bool {
	return roleID == globals.DefaultOwnerRoleID || roleID == globals.DefaultEditorRoleID
}

func taskSnapshot(t *models.Task) types.TaskSnapshot {
	s := types.TaskSnapshot{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		CategoryID:  t.CategoryID,
		ProjectID:   t.ProjectID,
		UserID:      t.UserID,
	}
	if t.DueDate != nil {
		due := t.DueDate.UTC().Format(time.RFC3339)
		s.DueDate = &due
	}
	return s
}

func (h *TasksHandler) CreateTask(c *gin.Context) {
	var req struct {
		Title       string     `json:"title" binding:"required"`
		Description *string    `json:"description"`
		Status      string     `json:"status"`
		CategoryID  *int       `json:"categoryId"`
		ProjectID   *int       `json:"projectId"`
		DueDate     *time.Time `json:"dueDate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, err.Error()))
		return
	}
	userID := c.GetInt("userId")

	if req.ProjectID != nil {
		roleID, err := h.projectsRepo.GetUserRoleIDInProject(userID, *req.ProjectID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
			return
		}
		if !canEditProject(roleID) {
			c.JSON(http.StatusForbidden, types.NewErrorResponse(types.ErrorCodeForbidden, "No permission to add tasks to the project"))
			return
		}
	}

	task, err := h.tasksRepo.CreateTask(repository.CreateTaskParams{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		CategoryID:  req.CategoryID,
		ProjectID:   req.ProjectID,
		UserID:      userID,
		DueDate:     req.DueDate,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusCreated, types.NewSuccessResponse(task))

	h.emitter.Emit(types.EntityTask, types.ActionCreated, userID, c.GetHeader(globals.SessionHeader), task.ID, task.ProjectID, taskSnapshot(task))
}

func (h *TasksHandler) UpdateTask(c *gin.Context) {
	taskID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "Invalid task ID"))
		return
	}
	var req struct {
		Title       *string    `json:"title"`
		Description *string    `json:"description"`
		Status      *string    `json:"status"`
		CategoryID  *int       `json:"categoryId"`
		DueDate     *time.Time `json:"dueDate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, err.Error()))
		return
	}
	userID := c.GetInt("userId")

	task, err := h.tasksRepo.GetTaskByID(taskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	if task == nil || task.IsDeleted {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCodeNotFound, "Task not found"))
		return
	}
	if !h.mayMutate(c, userID, task) {
		return
	}

	updated, err := h.tasksRepo.UpdateTask(taskID, repository.UpdateTaskParams{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		CategoryID:  req.CategoryID,
		DueDate:     req.DueDate,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(updated))

	h.emitter.Emit(types.EntityTask, types.ActionUpdated, userID, c.GetHeader(globals.SessionHeader), updated.ID, updated.ProjectID, taskSnapshot(updated))
}

func (h *TasksHandler) DeleteTask(c *gin.Context) {
	taskID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "Invalid task ID"))
		return
	}
	userID := c.GetInt("userId")

	task, err := h.tasksRepo.GetTaskByID(taskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	// A delete replayed against an already-removed task must report 404 so
	// offline clients can classify it as permanent and move on.
	if task == nil || task.IsDeleted {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCodeNotFound, "Task not found"))
		return
	}
	if !h.mayMutate(c, userID, task) {
		return
	}

	if err := h.tasksRepo.SetTaskDeleted(taskID, true); err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(gin.H{"message": "Task deleted successfully"}))

	h.emitter.Emit(types.EntityTask, types.ActionDeleted, userID, c.GetHeader(globals.SessionHeader), task.ID, task.ProjectID, nil)
}

func (h *TasksHandler) GetTasks(c *gin.Context) {
	userID := c.GetInt("userId")
	tasks, err := h.tasksRepo.GetTasksForUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(tasks))
}

func (h *TasksHandler) GetTask(c *gin.Context) {
	taskID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "Invalid task ID"))
		return
	}
	task, err := h.tasksRepo.GetTaskByID(taskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	if task == nil || task.IsDeleted {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCodeNotFound, "Task not found"))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(task))
}

// mayMutate enforces the viewer/editor/owner gate: personal tasks belong to
// their creator, project tasks to any member with write access. Writes a
// 403 and returns false on refusal.
func (h *TasksHandler) mayMutate(c *gin.Context, userID int, task *models.Task) bool {
	if task.ProjectID == nil {
		if task.UserID != userID {
			c.JSON(http.StatusForbidden, types.NewErrorResponse(types.ErrorCodeForbidden, "No permission to modify the task"))
			return false
		}
		return true
	}
	roleID, err := h.projectsRepo.GetUserRoleIDInProject(userID, *task.ProjectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return false
	}
	if !canEditProject(roleID) {
		c.JSON(http.StatusForbidden, types.NewErrorResponse(types.ErrorCodeForbidden, "No permission to modify the task"))
		return false
	}
	return true
}
