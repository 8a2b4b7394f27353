package handlers

import (
	"net/http"
	"strconv"

	"pillar-api/events"
	"pillar-api/globals"
	"pillar-api/models"
	"pillar-api/repository"
	"pillar-api/types"

	"github.com/gin-gonic/gin"
)

type NotesHandler struct {
	notesRepo    *repository.NotesRepository
	tasksRepo    *repository.TasksRepository
	projectsRepo *repository.ProjectsRepository
	emitter      *events.Emitter
}

func NewNotesHandler(notesRepo *repository.NotesRepository, tasksRepo *repository.TasksRepository, projectsRepo *repository.ProjectsRepository, emitter *events.Emitter) *NotesHandler {
	return &NotesHandler{notesRepo: notesRepo, tasksRepo: tasksRepo, projectsRepo: projectsRepo, emitter: emitter}
}

func noteSnapshot(n *models.Note) types.NoteSnapshot {
	return types.NoteSnapshot{ID: n.ID, TaskID: n.TaskID, ProjectID: n.ProjectID, UserID: n.UserID, Text: n.Text}
}

func (h *NotesHandler) CreateNote(c *gin.Context) {
	var req struct {
		TaskID int    `json:"taskId" binding:"required"`
		Text   string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, err.Error()))
		return
	}
	userID := c.GetInt("userId")

	task, err := h.tasksRepo.GetTaskByID(req.TaskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	if task == nil || task.IsDeleted {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCodeNotFound, "Task not found"))
		return
	}
	if !h.mayAnnotate(c, userID, task) {
		return
	}

	note, err := h.notesRepo.CreateNote(req.TaskID, userID, req.Text)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusCreated, types.NewSuccessResponse(note))

	// The note inherits its delivery scope from the parent task's project.
	h.emitter.Emit(types.EntityNote, types.ActionCreated, userID, c.GetHeader(globals.SessionHeader), note.ID, note.ProjectID, noteSnapshot(note))
}

func (h *NotesHandler) UpdateNote(c *gin.Context) {
	note, ok := h.loadNote(c)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, err.Error()))
		return
	}
	userID := c.GetInt("userId")
	if note.UserID != userID {
		c.JSON(http.StatusForbidden, types.NewErrorResponse(types.ErrorCodeForbidden, "Only the author can edit a note"))
		return
	}

	updated, err := h.notesRepo.UpdateNoteText(note.ID, req.Text)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(updated))

	h.emitter.Emit(types.EntityNote, types.ActionUpdated, userID, c.GetHeader(globals.SessionHeader), updated.ID, updated.ProjectID, noteSnapshot(updated))
}

func (h *NotesHandler) DeleteNote(c *gin.Context) {
	note, ok := h.loadNote(c)
	if !ok {
		return
	}
	userID := c.GetInt("userId")
	if note.UserID != userID {
		c.JSON(http.StatusForbidden, types.NewErrorResponse(types.ErrorCodeForbidden, "Only the author can delete a note"))
		return
	}
	if err := h.notesRepo.SetNoteDeleted(note.ID, true); err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(gin.H{"message": "Note deleted successfully"}))

	h.emitter.Emit(types.EntityNote, types.ActionDeleted, userID, c.GetHeader(globals.SessionHeader), note.ID, note.ProjectID, nil)
}

func (h *NotesHandler) GetNotesForTask(c *gin.Context) {
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
	if task == nil || task.IsDeleted {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCodeNotFound, "Task not found"))
		return
	}
	if !h.mayAnnotate(c, userID, task) {
		return
	}
	notes, err := h.notesRepo.GetNotesForTask(taskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(notes))
}

func (h *NotesHandler) loadNote(c *gin.Context) (*models.Note, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "Invalid note ID"))
		return nil, false
	}
	note, err := h.notesRepo.GetNoteByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return nil, false
	}
	if note == nil || note.IsDeleted {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCodeNotFound, "Note not found"))
		return nil, false
	}
	return note, true
}

func (h *NotesHandler) mayAnnotate(c *gin.Context, userID int, task *models.Task) bool {
	if task.ProjectID == nil {
		if task.UserID != userID {
			c.JSON(http.StatusForbidden, types.NewErrorResponse(types.ErrorCodeForbidden, "No access to the task"))
			return false
		}
		return true
	}
	roleID, err := h.projectsRepo.GetUserRoleIDInProject(userID, *task.ProjectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return false
	}
	if roleID == 0 {
		c.JSON(http.StatusForbidden, types.NewErrorResponse(types.ErrorCodeForbidden, "No access to the task"))
		return false
	}
	return true
}
