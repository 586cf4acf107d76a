package testutil

import (
	"context"
	"time"

	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockAPIKeyRepo struct {
	mock.Mock
}

func (m *MockAPIKeyRepo) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	args := m.Called(keyHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepo) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockAPIKeyRepo) ListAPIKeys(ctx context.Context, account domain.Account) ([]domain.APIKey, error) {
	args := m.Called(account)
	return args.Get(0).([]domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepo) DeleteAPIKey(ctx context.Context, account domain.Account, id string) error {
	args := m.Called(account, id)
	return args.Error(0)
}

type MockRegistryService struct {
	mock.Mock
}

func (m *MockRegistryService) Register(ctx context.Context, name string, payer domain.Account, payment decimal.Decimal) (*domain.Registration, error) {
	args := m.Called(name, payer, payment.String())
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Registration), args.Error(1)
}

func (m *MockRegistryService) Renew(ctx context.Context, name string, payer domain.Account, payment decimal.Decimal) (time.Time, error) {
	args := m.Called(name, payer, payment.String())
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockRegistryService) TransferName(ctx context.Context, name string, caller, newOwner domain.Account) error {
	args := m.Called(name, caller, newOwner)
	return args.Error(0)
}

func (m *MockRegistryService) ReleaseName(ctx context.Context, name string, caller domain.Account) error {
	args := m.Called(name, caller)
	return args.Error(0)
}

func (m *MockRegistryService) IsNameAvailable(ctx context.Context, name string) (bool, error) {
	args := m.Called(name)
	return args.Bool(0), args.Error(1)
}

func (m *MockRegistryService) GetNameOwner(ctx context.Context, name string) (domain.Account, error) {
	args := m.Called(name)
	return args.Get(0).(domain.Account), args.Error(1)
}

func (m *MockRegistryService) GetRegistration(ctx context.Context, name string) (*domain.RegistrationView, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RegistrationView), args.Error(1)
}

func (m *MockRegistryService) GetOwnerNames(ctx context.Context, owner domain.Account) ([]string, error) {
	args := m.Called(owner)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRegistryService) GetActiveOwnerNames(ctx context.Context, owner domain.Account) ([]string, error) {
	args := m.Called(owner)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRegistryService) GetSettings(ctx context.Context) (*domain.Settings, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Settings), args.Error(1)
}

func (m *MockRegistryService) GetBalance(ctx context.Context, account domain.Account) (decimal.Decimal, error) {
	args := m.Called(account)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockRegistryService) ListEvents(ctx context.Context, afterSeq int64, limit int) ([]domain.Event, error) {
	args := m.Called(afterSeq, limit)
	return args.Get(0).([]domain.Event), args.Error(1)
}

func (m *MockRegistryService) SetFee(ctx context.Context, caller domain.Account, fee decimal.Decimal) error {
	args := m.Called(caller, fee.String())
	return args.Error(0)
}

func (m *MockRegistryService) Pause(ctx context.Context, caller domain.Account) error {
	args := m.Called(caller)
	return args.Error(0)
}

func (m *MockRegistryService) Unpause(ctx context.Context, caller domain.Account) error {
	args := m.Called(caller)
	return args.Error(0)
}

func (m *MockRegistryService) Withdraw(ctx context.Context, caller domain.Account) (decimal.Decimal, error) {
	args := m.Called(caller)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockRegistryService) HealthCheck(ctx context.Context) map[string]error {
	args := m.Called()
	return args.Get(0).(map[string]error)
}
