package api

import "fieldboard-api/domain"

const mutationMaxSize = 64 * 1024 // 64 KiB

// Request bodies for POST /kanban?endpoint=<operation>.
type createColumnRequest struct {
	Title string `json:"title"`
}

type updateColumnRequest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type moveColumnsRequest struct {
	Order []string `json:"order"`
}

type deleteColumnRequest struct {
	ID string `json:"id"`
}

type createTaskRequest struct {
	ColumnID string      `json:"columnId"`
	Task     domain.Task `json:"task"`
}

type updateTaskRequest struct {
	Task domain.Task `json:"task"`
}

type moveTaskRequest struct {
	TaskID   string `json:"taskId"`
	From     string `json:"from"`
	To       string `json:"to"`
	Position int    `json:"position"`
}

type deleteTaskRequest struct {
	TaskID string `json:"taskId"`
}

type updateTaskDatesRequest struct {
	TaskID    string `json:"taskId"`
	StartDate string `json:"startDate"`
	DueDate   string `json:"dueDate"`
}

// GET /calendar response body.
type calendarResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type deleteColumnResponse struct {
	CascadedTaskIDs []string `json:"cascadedTaskIds,omitempty"`
}
