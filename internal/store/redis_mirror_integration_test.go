//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/njabbott/npp-simulation/internal/domain"
	"github.com/njabbott/npp-simulation/internal/store"
)

type RedisMirrorSuite struct {
	suite.Suite
	container *tcredis.RedisContainer
	client    *redis.Client
	mirror    *store.RedisMirror
}

func TestRedisMirrorSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisMirrorSuite))
}

func (s *RedisMirrorSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	s.Require().NoError(err)
	s.container = container

	addr, err := container.ConnectionString(ctx)
	s.Require().NoError(err)

	opts, err := redis.ParseURL(addr)
	s.Require().NoError(err)
	s.client = redis.NewClient(opts)
	s.Require().NoError(s.client.Ping(ctx).Err())

	s.mirror = store.NewRedisMirror(s.client, "test:session:", time.Minute)
}

func (s *RedisMirrorSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	s.NoError(testcontainers.TerminateContainer(s.container))
}

func (s *RedisMirrorSuite) SetupTest() {
	s.Require().NoError(s.client.FlushAll(context.Background()).Err())
}

func (s *RedisMirrorSuite) TestSaveLoadRoundTrip() {
	ctx := context.Background()

	session := domain.DefaultSession()
	session.Form.Amount = "100.00"
	session.PaymentResult = &domain.PaymentRecord{
		PaymentID: "p1",
		Amount:    decimal.RequireFromString("100.00"),
		Status:    domain.StatusConfirmed,
	}
	session.CurrentStatus = domain.StatusConfirmed
	session.RelatedMessages = []domain.MessageRecord{{ID: 3, MessageType: "PACS_002", PaymentID: "p1"}}

	s.Require().NoError(s.mirror.Save(ctx, "ws-1:send", session))

	loaded, found, err := s.mirror.Load(ctx, "ws-1:send")
	s.Require().NoError(err)
	s.Require().True(found)
	s.Equal(session.Form, loaded.Form)
	s.Equal(session.CurrentStatus, loaded.CurrentStatus)
	s.Equal(session.RelatedMessages[0].MessageType, loaded.RelatedMessages[0].MessageType)
	s.Require().NotNil(loaded.PaymentResult)
	s.True(session.PaymentResult.Amount.Equal(loaded.PaymentResult.Amount))

	ttl, err := s.client.TTL(ctx, "test:session:ws-1:send").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *RedisMirrorSuite) TestLoadMissingKey() {
	_, found, err := s.mirror.Load(context.Background(), "ws-unknown:send")
	s.Require().NoError(err)
	s.False(found)
}

func (s *RedisMirrorSuite) TestRegistryRestoresAcrossInstances() {
	first, _ := store.NewRegistry("ws-9", s.mirror).Cell(store.SlotSend)
	first.Update(func(session *domain.TrackingSession) {
		session.Form.PayIDValue = "sarah.j@email.com"
		session.Form.PayIDType = domain.PayIDEmail
	})

	second, _ := store.NewRegistry("ws-9", s.mirror).Cell(store.SlotSend)
	got := second.Read()
	s.Equal(domain.PayIDEmail, got.Form.PayIDType)
	s.Equal("sarah.j@email.com", got.Form.PayIDValue)

	store.NewRegistry("ws-9", s.mirror).Discard(context.Background())
	_, found, err := s.mirror.Load(context.Background(), "ws-9:send")
	s.Require().NoError(err)
	s.False(found)
}
