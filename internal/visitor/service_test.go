package visitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gate-tracker/gate_tracker/internal/apperr"
	"github.com/gate-tracker/gate_tracker/internal/audit"
	"github.com/gate-tracker/gate_tracker/internal/logging"
	"github.com/gate-tracker/gate_tracker/internal/progress"
)

type recordingSink struct{ events []audit.Event }

func (r *recordingSink) Emit(_ context.Context, e audit.Event) { r.events = append(r.events, e) }

type failingEraser struct{}

func (failingEraser) DeleteAll(context.Context, progress.Actor) (progress.Deleted, error) {
	return progress.Deleted{}, apperr.Internal("delete", errors.New("disk full"))
}

func TestRegisterReportsNewAndReturning(t *testing.T) {
	svc := NewService(NewMemoryRepository(), progress.NewService(progress.NewMemoryStore()), nil)
	ctx := context.Background()

	v, isNew, err := svc.Register(ctx, "  abc-123 ")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "abc-123", v.ID)

	_, isNew, err = svc.Register(ctx, "abc-123")
	require.NoError(t, err)
	assert.False(t, isNew)

	_, _, err = svc.Register(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "Valid visitorId required", apperr.PublicMessage(err))
}

func TestDeleteErasesProgressAndAudits(t *testing.T) {
	ctx := audit.WithIP(context.Background(), "198.51.100.4")
	prog := progress.NewService(progress.NewMemoryStore())
	sink := &recordingSink{}
	svc := NewService(NewMemoryRepository(), prog, sink)

	_, _, err := svc.Register(ctx, "abc-123")
	require.NoError(t, err)
	actor := progress.Visitor("abc-123")
	_, err = prog.SaveDay(ctx, actor, progress.DayInput{Year: 2024, Month: 1, Day: 2, Hours: 3})
	require.NoError(t, err)
	_, err = prog.SaveTopic(ctx, actor, progress.TopicInput{Subject: "DBMS", Topic: "Joins", Flags: progress.Flags{Watched: true}})
	require.NoError(t, err)

	erased, err := svc.Delete(ctx, "abc-123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), erased.StudyHours)
	assert.Equal(t, int64(1), erased.Curriculum)
	assert.True(t, erased.Visitor)

	// A second delete succeeds with nothing left.
	erased, err = svc.Delete(ctx, "abc-123")
	require.NoError(t, err)
	assert.Equal(t, Erased{}, erased)

	require.Len(t, sink.events, 2)
	assert.Equal(t, audit.ActionVisitorDelete, sink.events[0].Action)
	assert.True(t, sink.events[0].Success)
	assert.Equal(t, "198.51.100.4", sink.events[0].IP)
}

func TestDeleteFailureIsAudited(t *testing.T) {
	sink := &recordingSink{}
	svc := NewService(NewMemoryRepository(), failingEraser{}, sink)

	_, err := svc.Delete(context.Background(), "abc-123")
	assert.ErrorIs(t, err, apperr.ErrInternal)
	require.Len(t, sink.events, 1)
	assert.False(t, sink.events[0].Success)
}

func TestHandlerRegisterAndDelete(t *testing.T) {
	svc := NewService(NewMemoryRepository(), progress.NewService(progress.NewMemoryStore()), nil)
	h := NewHandler(svc)
	app := fiber.New(fiber.Config{ErrorHandler: apperr.ErrorHandler(logging.Discard())})
	app.Post("/visitor/register", h.Register)
	app.Delete("/visitor/:visitorId", h.Delete)

	register := func() map[string]any {
		req := httptest.NewRequest("POST", "/visitor/register", strings.NewReader(`{"visitorId":"abc-123"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)
		var body map[string]any
		raw, _ := io.ReadAll(resp.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		return body
	}

	first := register()
	assert.Equal(t, "New visitor registered", first["message"])
	assert.Equal(t, true, first["isNew"])
	second := register()
	assert.Equal(t, "Welcome back", second["message"])

	resp, err := app.Test(httptest.NewRequest("DELETE", "/visitor/abc-123", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "All data deleted successfully")

	req := httptest.NewRequest("POST", "/visitor/register", strings.NewReader(`{"visitorId":""}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}
