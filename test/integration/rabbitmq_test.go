//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dmehra2102/Food-Ordering-System/internal/notification"
	"github.com/dmehra2102/Food-Ordering-System/internal/notification/infrastructure/rabbitmq"
)

func TestPublisherFansOutHubEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-alpine",
			ExposedPorts: []string{"5672/tcp"},
			WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)
	url := fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub, err := rabbitmq.Dial(ctx, log, url, "")
	require.NoError(t, err)
	defer pub.Close()

	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	defer conn.Close()
	ch, err := conn.Channel()
	require.NoError(t, err)
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "", rabbitmq.DefaultExchange, false, nil))
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	hub := notification.NewHub(log, notification.DefaultQueueSize)
	defer hub.Close()
	key := notification.VenueKey("main", notification.RoleAdminCommands)
	hub.Attach(key, pub)
	hub.Publish(key, notification.NewEvent(notification.TypeOrderCreated, "main", "o-1", nil))

	select {
	case d := <-deliveries:
		assert.Equal(t, notification.TypeOrderCreated, d.Type)
		var ev notification.Event
		require.NoError(t, json.Unmarshal(d.Body, &ev))
		assert.Equal(t, "o-1", ev.OrderID)
		assert.Equal(t, "main", d.Headers["venue"])
	case <-ctx.Done():
		t.Fatal("no message on the fanout exchange")
	}
}
