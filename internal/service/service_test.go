package service_test

import (
	"context"
	"testing"
	"time"

	"govtender/internal/auth"
	"govtender/internal/models"
	"govtender/internal/service"
	"govtender/internal/storage"
	"govtender/internal/testutils"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var _ service.Repository = (*testutils.Store)(nil)

const testPassword = "secret123"

type testEnv struct {
	svc      *service.Service
	store    *testutils.Store
	ledger   *testutils.Ledger
	storage  *testutils.Storage
	notifier *testutils.Notifier
	tokens   *auth.TokenService
}

func newTestEnv(t *testing.T, opts ...service.Option) *testEnv {
	t.Helper()

	env := &testEnv{
		store:    testutils.NewStore(),
		ledger:   testutils.NewLedger(),
		storage:  testutils.NewStorage(),
		notifier: testutils.NewNotifier(),
		tokens:   auth.NewTokenService(testutils.TokenConfig()),
	}
	opts = append([]service.Option{
		service.WithLedger(env.ledger, time.Second),
		service.WithImageStore(env.storage),
		service.WithDocumentStore(env.storage),
		service.WithNotifier(env.notifier),
		service.WithLogger(zerolog.Nop()),
	}, opts...)
	env.svc = service.NewService(env.store, env.tokens, opts...)
	return env
}

func (env *testEnv) citizen(t *testing.T) models.Citizen {
	t.Helper()

	c, err := env.svc.RegisterCitizen(context.Background(), service.CitizenRegistration{
		Username: gofakeit.Username() + gofakeit.DigitN(4),
		Email:    gofakeit.DigitN(4) + gofakeit.Email(),
		FullName: gofakeit.Name(),
		Password: testPassword,
		Avatar:   storage.File{Name: "dp.png", Data: testutils.PNG()},
	})
	require.NoError(t, err)
	return c
}

func (env *testEnv) admin(t *testing.T) models.Admin {
	t.Helper()
	ctx := context.Background()

	a, err := env.svc.RegisterAdmin(ctx, service.AdminRegistration{
		UserId:   int64(gofakeit.IntRange(1, 1<<30)),
		Password: testPassword,
	})
	require.NoError(t, err)

	a, err = env.store.VerifyAdmin(ctx, a.Id)
	require.NoError(t, err)
	return a
}

func (env *testEnv) owner(t *testing.T) models.Owner {
	t.Helper()

	o, err := env.svc.BootstrapOwner(context.Background(), int64(gofakeit.IntRange(1, 1<<30)), testPassword)
	require.NoError(t, err)
	return o
}

func (env *testEnv) tender(t *testing.T, admin *models.Admin) models.Tender {
	t.Helper()

	tender, err := env.svc.CreateTender(context.Background(), admin, service.NewTender{
		Title:       gofakeit.BuzzWord() + " works",
		Description: gofakeit.Sentence(12),
		Budget:      float64(gofakeit.IntRange(1000, 100000)),
		Deadline:    time.Now().Add(48 * time.Hour),
	})
	require.NoError(t, err)
	return tender
}

func (env *testEnv) bid(t *testing.T, citizen *models.Citizen, tender models.Tender, amount float64) models.Bid {
	t.Helper()

	bid, err := env.svc.SubmitBid(context.Background(), citizen, tender.Id, service.NewBid{
		Amount:      amount,
		Description: gofakeit.Sentence(8),
	})
	require.NoError(t, err)
	return bid
}

func TestPing(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.svc.Ping(context.Background()))
}
