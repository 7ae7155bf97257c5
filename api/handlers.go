package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"fieldboard-api/domain"
)

const headerTenant = "X-Tenant-ID"

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Store, pub Publisher, logger *log.Logger) {
	e.GET("/kanban", getKanban(store, logger))
	e.POST("/kanban", postKanban(store, logger))
	e.GET("/calendar", getCalendar(store))
	e.GET("/healthz", healthz())

	initChangePublisher(pub, logger)
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func tenantID(c echo.Context) (string, error) {
	id := c.Request().Header.Get(headerTenant)
	if id == "" {
		return "", errors.New("missing tenant header")
	}
	return id, nil
}

func getKanban(store Store, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		tenant, terr := tenantID(c)
		if terr != nil {
			metrics.SetErrorStage("tenant")
			err = c.String(http.StatusBadRequest, terr.Error())
			return err
		}
		if ep := c.QueryParam("endpoint"); ep != "" && ep != "board" {
			metrics.SetErrorStage("endpoint")
			err = c.String(http.StatusBadRequest, "unknown endpoint")
			return err
		}

		fetchStart := time.Now()
		payload, ferr := store.FetchBoard(ctx, tenant)
		metrics.ObserveFetch(time.Since(fetchStart))
		if ferr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(ferr)
			err = c.String(http.StatusInternalServerError, ferr.Error())
			return err
		}
		if clientID := c.QueryParam("clientId"); clientID != "" {
			payload = filterByClient(payload, clientID)
			metrics.SetClientFiltered(true)
		}
		metrics.SetTasksReturned(len(payload.Tasks))
		metrics.SetColumnsReturned(len(payload.Columns))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, payload)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

// filterByClient narrows the flat task list to one client. Column TaskIDs are
// left as-is; dangling references are dropped by the board transformer.
func filterByClient(p domain.BoardPayload, clientID string) domain.BoardPayload {
	tasks := make([]domain.Task, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		if t.ClientID == clientID {
			tasks = append(tasks, t)
		}
	}
	p.Tasks = tasks
	return p
}

func getCalendar(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		tenant, err := tenantID(c)
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		payload, err := store.FetchBoard(ctx, tenant)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		scheduled := make([]domain.Task, 0, len(payload.Tasks))
		for _, t := range payload.Tasks {
			if t.Scheduled() {
				scheduled = append(scheduled, t)
			}
		}
		return c.JSON(http.StatusOK, calendarResponse{Tasks: scheduled})
	}
}

func postKanban(store Store, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		tenant, err := tenantID(c)
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}

		switch c.QueryParam("endpoint") {
		case "create-column":
			var req createColumnRequest
			if err := decodeBody(c, &req); err != nil {
				return c.String(http.StatusBadRequest, "invalid body")
			}
			col, err := store.CreateColumn(ctx, tenant, req.Title)
			if err != nil {
				return storeError(c, err)
			}
			publish(tenant, "column", col.ID, domain.ChangeOpCreate, nil, logger)
			return c.JSON(http.StatusCreated, col)

		case "update-column":
			var req updateColumnRequest
			if err := decodeBody(c, &req); err != nil {
				return c.String(http.StatusBadRequest, "invalid body")
			}
			if err := store.RenameColumn(ctx, tenant, req.ID, req.Title); err != nil {
				return storeError(c, err)
			}
			publish(tenant, "column", req.ID, domain.ChangeOpUpdate, nil, logger)
			return c.NoContent(http.StatusNoContent)

		case "move-columns":
			var req moveColumnsRequest
			if err := decodeBody(c, &req); err != nil {
				return c.String(http.StatusBadRequest, "invalid body")
			}
			if err := store.ReorderColumns(ctx, tenant, req.Order); err != nil {
				return storeError(c, err)
			}
			publish(tenant, "column", "", domain.ChangeOpReorder, nil, logger)
			return c.NoContent(http.StatusNoContent)

		case "delete-column":
			var req deleteColumnRequest
			if err := decodeBody(c, &req); err != nil {
				return c.String(http.StatusBadRequest, "invalid body")
			}
			cascaded, err := store.DeleteColumn(ctx, tenant, req.ID)
			if err != nil {
				return storeError(c, err)
			}
			publish(tenant, "column", req.ID, domain.ChangeOpDelete, cascaded, logger)
			return c.JSON(http.StatusOK, deleteColumnResponse{CascadedTaskIDs: cascaded})

		case "create-task":
			var req createTaskRequest
			if err := decodeBody(c, &req); err != nil {
				return c.String(http.StatusBadRequest, "invalid body")
			}
			task, err := store.CreateTask(ctx, tenant, req.ColumnID, req.Task)
			if err != nil {
				return storeError(c, err)
			}
			publish(tenant, "task", task.ID, domain.ChangeOpCreate, nil, logger)
			return c.JSON(http.StatusCreated, task)

		case "update-task":
			var req updateTaskRequest
			if err := decodeBody(c, &req); err != nil {
				return c.String(http.StatusBadRequest, "invalid body")
			}
			if err := store.UpdateTask(ctx, tenant, req.Task); err != nil {
				return storeError(c, err)
			}
			publish(tenant, "task", req.Task.ID, domain.ChangeOpUpdate, nil, logger)
			return c.NoContent(http.StatusNoContent)

		case "move-task":
			var req moveTaskRequest
			if err := decodeBody(c, &req); err != nil {
				return c.String(http.StatusBadRequest, "invalid body")
			}
			if err := store.MoveTask(ctx, tenant, req.TaskID, req.From, req.To, req.Position); err != nil {
				return storeError(c, err)
			}
			publish(tenant, "task", req.TaskID, domain.ChangeOpMove, nil, logger)
			return c.NoContent(http.StatusNoContent)

		case "delete-task":
			var req deleteTaskRequest
			if err := decodeBody(c, &req); err != nil {
				return c.String(http.StatusBadRequest, "invalid body")
			}
			if err := store.DeleteTask(ctx, tenant, req.TaskID); err != nil {
				return storeError(c, err)
			}
			publish(tenant, "task", req.TaskID, domain.ChangeOpDelete, nil, logger)
			return c.NoContent(http.StatusNoContent)

		case "update-task-dates":
			var req updateTaskDatesRequest
			if err := decodeBody(c, &req); err != nil {
				return c.String(http.StatusBadRequest, "invalid body")
			}
			if err := store.RescheduleTask(ctx, tenant, req.TaskID, req.StartDate, req.DueDate); err != nil {
				return storeError(c, err)
			}
			publish(tenant, "task", req.TaskID, domain.ChangeOpUpdate, nil, logger)
			return c.NoContent(http.StatusNoContent)

		default:
			return c.String(http.StatusBadRequest, "unknown endpoint")
		}
	}
}

func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, mutationMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func storeError(c echo.Context, err error) error {
	var nf NotFoundError
	if errors.As(err, &nf) {
		return c.String(http.StatusNotFound, err.Error())
	}
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, err.Error())
}

func publish(tenant, entityType, entityID string, op domain.ChangeOp, cascaded []string, logger *log.Logger) {
	ev := domain.ChangeEvent{
		TenantID:   tenant,
		EntityType: entityType,
		EntityID:   entityID,
		Op:         op,
		CascadeIDs: cascaded,
		Timestamp:  nextTimestamp(),
	}
	if tryPublishChange(ev) {
		return
	}
	if globalLog != nil {
		globalLog.Warn("change buffer saturated; publishing inline")
	}
	publishInline(ev)
}

func publishInline(ev domain.ChangeEvent) {
	if globalPub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(bg, publishTimeout)
	defer cancel()
	if err := globalPub.PublishChange(ctx, ev); err != nil && globalLog != nil {
		globalLog.Errorf("inline change publish failed: %v", err)
	}
}
