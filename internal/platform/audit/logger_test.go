package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"praxis/internal/platform/database"
)

func TestLogAndList(t *testing.T) {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	defer db.Close()

	l := NewLogger(db)
	ctx := WithActor(context.Background(), Actor{UserID: "usr_1", IPAddress: "10.0.0.1"})

	require.NoError(t, l.Log(ctx, nil, "org_1", ActionPlanChanged, "subscription", "sub_1", map[string]interface{}{"to": "professional"}))
	l.Record(context.Background(), "org_1", ActionWebhookApplied, "subscription", "sub_1", nil)
	l.Record(context.Background(), "org_2", ActionWebhookApplied, "subscription", "sub_2", nil)

	logs, err := l.List(context.Background(), "org_1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	var changed *AuditLog
	for _, e := range logs {
		if e.Action == ActionPlanChanged {
			changed = e
		}
	}
	require.NotNil(t, changed)
	assert.Equal(t, "usr_1", changed.UserID)
	assert.Equal(t, "10.0.0.1", changed.IPAddress)
	assert.Equal(t, "professional", changed.Metadata["to"])
}
