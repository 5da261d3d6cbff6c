package handler

import (
	"context"
	"net/http"
	"strconv"
	"testing"

	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListNotifications(t *testing.T) {
	f := setupAPI(t)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		f.notificationService.SendNotification(ctx, domain.Notification{
			UserID:  f.customer.ID,
			Title:   "Reminder " + strconv.Itoa(i),
			Message: "Installment due",
		})
	}
	f.notificationService.SendNotification(ctx, domain.Notification{UserID: f.other.ID, Title: "Not yours"})
	require.NoError(t, f.notificationService.MarkRead(ctx, f.customer.ID, 1))

	c, rec := f.newContext(http.MethodGet, "/api/v1/notifications", "", f.customer)
	require.NoError(t, f.handlers.Notification.ListNotifications(c))
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]NotificationResponse](t, rec)
	require.Len(t, all, 3)
	assert.Equal(t, "Reminder 3", all[0].Title, "newest first")
	assert.Equal(t, "info", all[0].Type)

	c, rec = f.newContext(http.MethodGet, "/api/v1/notifications?unread=true&limit=1", "", f.customer)
	require.NoError(t, f.handlers.Notification.ListNotifications(c))
	unread := decode[[]NotificationResponse](t, rec)
	require.Len(t, unread, 1)
	assert.False(t, unread[0].IsRead)

	c, rec = f.newContext(http.MethodGet, "/api/v1/notifications?limit=many", "", f.customer)
	require.NoError(t, f.handlers.Notification.ListNotifications(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkRead(t *testing.T) {
	f := setupAPI(t)
	f.notificationService.SendNotification(context.Background(), domain.Notification{UserID: f.customer.ID, Title: "Hello"})

	// Someone else's notification looks missing
	c, rec := f.newContext(http.MethodPatch, "/api/v1/notifications/1/read", "", f.other)
	require.NoError(t, f.handlers.Notification.MarkRead(withParams(c, "id", "1")))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	c, rec = f.newContext(http.MethodPatch, "/api/v1/notifications/1/read", "", f.customer)
	require.NoError(t, f.handlers.Notification.MarkRead(withParams(c, "id", "1")))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, f.notifications.Notifications[0].IsRead)

	c, rec = f.newContext(http.MethodPatch, "/api/v1/notifications/0/read", "", f.customer)
	require.NoError(t, f.handlers.Notification.MarkRead(withParams(c, "id", "0")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
