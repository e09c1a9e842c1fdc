package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nikolayk812/checkoutflow/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type publisherSuite struct {
	suite.Suite

	ns   *server.Server
	conn *nats.Conn
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(publisherSuite))
}

func (suite *publisherSuite) SetupSuite() {
	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	suite.Require().NoError(err)

	go ns.Start()
	suite.Require().True(ns.ReadyForConnections(5 * time.Second))
	suite.ns = ns

	suite.conn, err = nats.Connect(ns.ClientURL())
	suite.Require().NoError(err)
}

func (suite *publisherSuite) TearDownSuite() {
	if suite.conn != nil {
		suite.conn.Close()
	}
	if suite.ns != nil {
		suite.ns.Shutdown()
		suite.ns.WaitForShutdown()
	}
}

func (suite *publisherSuite) TestPublish() {
	t := suite.T()

	type paid struct {
		OrderRef string `json:"orderRef"`
		Outcome  string `json:"outcome"`
	}

	tests := []struct {
		name        string
		prefix      string
		event       string
		payload     any
		wantSubject string
		wantError   string
	}{
		{
			name:        "custom prefix: ok",
			prefix:      "shop.",
			event:       "checkout.paid",
			payload:     paid{OrderRef: "ord_1", Outcome: "succeeded"},
			wantSubject: "shop.checkout.paid",
		},
		{
			name:        "default prefix: ok",
			event:       "checkout.step_failed",
			payload:     map[string]string{"step": "sales-tax"},
			wantSubject: "events.checkout.step_failed",
		},
		{
			name:      "empty event: fail",
			event:     "",
			payload:   paid{},
			wantError: "event is empty",
		},
		{
			name:      "unmarshalable payload: fail",
			event:     "checkout.paid",
			payload:   make(chan int),
			wantError: "json.Marshal: json: unsupported type: chan int",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher, err := events.NewNATSPublisher(suite.conn, tt.prefix)
			require.NoError(t, err)

			sub, err := suite.conn.SubscribeSync(">")
			require.NoError(t, err)
			defer func() { _ = sub.Unsubscribe() }()
			require.NoError(t, suite.conn.Flush())

			err = publisher.Publish(t.Context(), tt.event, tt.payload)
			if tt.wantError != "" {
				require.EqualError(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)

			msg, err := sub.NextMsg(2 * time.Second)
			require.NoError(t, err)

			assert.Equal(t, tt.wantSubject, msg.Subject)
			assert.Equal(t, "application/json", msg.Header.Get("Content-Type"))

			want, err := json.Marshal(tt.payload)
			require.NoError(t, err)
			assert.JSONEq(t, string(want), string(msg.Data))
		})
	}
}

func (suite *publisherSuite) TestPublishCancelled() {
	publisher, err := events.NewNATSPublisher(suite.conn, "")
	suite.Require().NoError(err)

	ctx, cancel := context.WithCancel(suite.T().Context())
	cancel()

	err = publisher.Publish(ctx, "checkout.paid", struct{}{})
	suite.Require().ErrorIs(err, context.Canceled)
}

func TestNewNATSPublisher_NilConn(t *testing.T) {
	_, err := events.NewNATSPublisher(nil, "")
	require.EqualError(t, err, "conn is nil")
}

func TestNop(t *testing.T) {
	require.NoError(t, events.Nop().Publish(t.Context(), "checkout.paid", nil))
}
