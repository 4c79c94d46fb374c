package api_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduler-api/internal/model"
)

func TestSchedulingFlow(t *testing.T) {
	contentID := createContent(model.ContentStatusApproved)
	when := slot(time.Hour)

	// Schedule
	createResp := makeRequest("POST", "/scheduling", map[string]interface{}{
		"content_id":     contentID,
		"platform":       "facebook",
		"scheduled_time": when,
		"timezone":       "America/New_York",
	}, authToken)
	require.True(t, createResp.IsSuccess(), "Failed to schedule content: %s", createResp.Message)
	assert.Equal(t, http.StatusCreated, createResp.Code)
	bookingID := createResp.GetString("id")
	assert.NotEmpty(t, bookingID)
	assert.Equal(t, "scheduled", createResp.GetString("status"))
	assert.Equal(t, model.ContentStatusScheduled, contentStatus(contentID))

	// Upcoming includes the booking
	upcomingResp := makeRequest("GET", "/scheduling/upcoming?limit=100", nil, authToken)
	require.True(t, upcomingResp.IsSuccess())
	var upcoming []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(upcomingResp.RawData), &upcoming))
	found := false
	for _, b := range upcoming {
		if b["id"] == bookingID {
			found = true
		}
	}
	assert.True(t, found, "upcoming should include the new booking")

	// Get by id
	getResp := makeRequest("GET", "/scheduling/"+bookingID, nil, authToken)
	require.True(t, getResp.IsSuccess())
	assert.Equal(t, "facebook", getResp.GetString("platform"))

	// Reschedule into the past is rejected and leaves the booking alone
	pastResp := makeRequest("PATCH", fmt.Sprintf("/scheduling/%s/reschedule", bookingID), map[string]interface{}{
		"scheduled_time": time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
	}, authToken)
	assert.Equal(t, http.StatusBadRequest, pastResp.Code)
	assert.Equal(t, "Scheduled time must be in the future", pastResp.Message)

	getResp = makeRequest("GET", "/scheduling/"+bookingID, nil, authToken)
	assert.Equal(t, createResp.GetString("scheduled_time"), getResp.GetString("scheduled_time"))

	// Update
	updateResp := makeRequest("PUT", "/scheduling/"+bookingID, map[string]interface{}{
		"platform": "linkedin",
	}, authToken)
	require.True(t, updateResp.IsSuccess(), "Failed to update: %s", updateResp.Message)
	assert.Equal(t, "linkedin", updateResp.GetString("platform"))

	// Cancel
	cancelResp := makeRequest("DELETE", "/scheduling/"+bookingID, nil, authToken)
	require.True(t, cancelResp.IsSuccess(), "Failed to cancel: %s", cancelResp.Message)
	assert.Equal(t, "cancelled", cancelResp.GetString("status"))
	assert.Equal(t, model.ContentStatusApproved, contentStatus(contentID))

	// Cancelling again fails
	againResp := makeRequest("DELETE", "/scheduling/"+bookingID, nil, authToken)
	assert.Equal(t, http.StatusBadRequest, againResp.Code)
	assert.Equal(t, "Only scheduled content can be cancelled", againResp.Message)
}

func TestScheduleRejections(t *testing.T) {
	draft := createContent(model.ContentStatusDraft)
	resp := makeRequest("POST", "/scheduling", map[string]interface{}{
		"content_id":     draft,
		"platform":       "instagram",
		"scheduled_time": slot(time.Hour),
	}, authToken)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Content must be approved before scheduling", resp.Message)

	resp = makeRequest("POST", "/scheduling", map[string]interface{}{
		"content_id":     uuid.New(),
		"platform":       "instagram",
		"scheduled_time": slot(time.Hour),
	}, authToken)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = makeRequest("POST", "/scheduling", map[string]interface{}{
		"platform": "instagram",
	}, authToken)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	// conflict on the same platform and instant
	when := slot(time.Hour)
	first := makeRequest("POST", "/scheduling", map[string]interface{}{
		"content_id":     createContent(model.ContentStatusApproved),
		"platform":       "tiktok",
		"scheduled_time": when,
	}, authToken)
	require.True(t, first.IsSuccess(), first.Message)

	second := makeRequest("POST", "/scheduling", map[string]interface{}{
		"content_id":     createContent(model.ContentStatusApproved),
		"platform":       "tiktok",
		"scheduled_time": when,
	}, authToken)
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, "Scheduling conflict detected for this platform and time", second.Message)
}

func TestRequiresAuthentication(t *testing.T) {
	resp := makeRequest("GET", "/scheduling/upcoming", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	health := makeRequest("GET", "/health/live", nil, "")
	assert.Equal(t, http.StatusOK, health.Code)
}

func TestBulkScheduling(t *testing.T) {
	items := []map[string]interface{}{
		{"content_id": createContent(model.ContentStatusApproved), "platform": "youtube", "scheduled_time": slot(time.Hour)},
		{"content_id": createContent(model.ContentStatusDraft), "platform": "youtube", "scheduled_time": slot(time.Hour)},
		{"content_id": createContent(model.ContentStatusApproved), "platform": "youtube", "scheduled_time": slot(time.Hour)},
	}

	resp := makeRequest("POST", "/scheduling/bulk", map[string]interface{}{"scheduleItems": items}, authToken)
	require.True(t, resp.IsSuccess(), resp.Message)
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, float64(2), resp.Data["success"])
	assert.Equal(t, float64(1), resp.Data["failed"])

	errs, ok := resp.Data["errors"].([]interface{})
	require.True(t, ok)
	require.Len(t, errs, 1)
	first := errs[0].(map[string]interface{})
	assert.Equal(t, float64(1), first["index"])
	assert.Equal(t, "Content must be approved before scheduling", first["error"])

	empty := makeRequest("POST", "/scheduling/bulk", map[string]interface{}{"scheduleItems": []interface{}{}}, authToken)
	assert.Equal(t, http.StatusBadRequest, empty.Code)
}

func TestCalendar(t *testing.T) {
	next := time.Now().Add(30 * 24 * time.Hour).UTC()
	when := time.Date(next.Year(), next.Month(), next.Day(), 15, 0, 0, 0, time.UTC)
	resp := makeRequest("POST", "/scheduling", map[string]interface{}{
		"content_id":     createContent(model.ContentStatusApproved),
		"platform":       "twitter",
		"scheduled_time": when.Format(time.RFC3339),
	}, authToken)
	require.True(t, resp.IsSuccess(), resp.Message)

	day := when.Format("2006-01-02")
	cal := makeRequest("GET", fmt.Sprintf("/scheduling/calendar?start_date=%s&end_date=%s&platform=twitter", day, day), nil, authToken)
	require.True(t, cal.IsSuccess(), cal.Message)
	entries, ok := cal.Data[day].([]interface{})
	require.True(t, ok)
	assert.Len(t, entries, 1)

	// a date-only end_date covers the whole day on the list endpoint too
	list := makeRequest("GET", fmt.Sprintf("/scheduling?start_date=%s&end_date=%s&platform=twitter", day, day), nil, authToken)
	require.True(t, list.IsSuccess(), list.Message)
	var listed []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(list.RawData), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, resp.GetString("id"), listed[0]["id"])

	missing := makeRequest("GET", "/scheduling/calendar?start_date="+day, nil, authToken)
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestDispatchedBookingCannotBeCancelled(t *testing.T) {
	contentID := createContent(model.ContentStatusApproved)
	resp := makeRequest("POST", "/scheduling", map[string]interface{}{
		"content_id":     contentID,
		"platform":       "facebook",
		"scheduled_time": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	}, authToken)
	require.True(t, resp.IsSuccess(), resp.Message)
	bookingID := resp.GetString("id")

	dispatcher.WithClock(func() time.Time { return time.Now().Add(time.Hour + time.Minute) })
	report, err := dispatcher.Tick(bgCtx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, report.Posted, 1)

	getResp := makeRequest("GET", "/scheduling/"+bookingID, nil, authToken)
	assert.Equal(t, "posted", getResp.GetString("status"))

	cancelResp := makeRequest("DELETE", "/scheduling/"+bookingID, nil, authToken)
	assert.Equal(t, http.StatusBadRequest, cancelResp.Code)
	assert.Equal(t, "Only scheduled content can be cancelled", cancelResp.Message)

	failedResp := makeRequest("GET", "/scheduling/failed", nil, authToken)
	assert.True(t, failedResp.IsSuccess())
}

func TestUnsupportedPlatformRejectedAtBinding(t *testing.T) {
	resp := makeRequest("POST", "/scheduling", map[string]interface{}{
		"content_id":     createContent(model.ContentStatusApproved),
		"platform":       "myspace",
		"scheduled_time": slot(time.Hour),
		"timezone":       "Mars/Olympus",
	}, authToken)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Message, "platform is not a supported platform")
	assert.Contains(t, resp.Message, "timezone must be a valid IANA timezone")
}

func TestMetricsEndpoint(t *testing.T) {
	makeRequest("GET", "/health/live", nil, "")

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "scheduler_http_requests_total")
}
