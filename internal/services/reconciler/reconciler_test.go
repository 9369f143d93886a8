package reconciler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	ledgerclient "github.com/magabrotheeeer/stablecoin-gateway/internal/ledger"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/models"
)

const testSender = "USER_WALLET"

type LedgerMock struct{ mock.Mock }

func (m *LedgerMock) GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]ledgerclient.SignatureInfo, error) {
	args := m.Called(ctx, address, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledgerclient.SignatureInfo), args.Error(1)
}

type VerifierMock struct{ mock.Mock }

func (m *VerifierMock) Verify(ctx context.Context, signature string, expectedUnits int64, expectedSender string) (*models.VerificationResult, error) {
	args := m.Called(ctx, signature, expectedUnits, expectedSender)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VerificationResult), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freshSignature(sig string) []ledgerclient.SignatureInfo {
	blockTime := time.Now().Unix() + 1
	return []ledgerclient.SignatureInfo{{Signature: sig, Slot: 100, BlockTime: &blockTime}}
}

func TestRun_SuccessStopsPolling(t *testing.T) {
	ledgerMock := new(LedgerMock)
	verifierMock := new(VerifierMock)

	// Первый тик пустой, на втором появляется подходящая транзакция
	ledgerMock.On("GetSignaturesForAddress", mock.Anything, testSender, 20).
		Return([]ledgerclient.SignatureInfo{}, nil).Once()
	ledgerMock.On("GetSignaturesForAddress", mock.Anything, testSender, 20).
		Return(freshSignature("sig-found"), nil).Once()
	verifierMock.On("Verify", mock.Anything, "sig-found", int64(15_000_000), testSender).
		Return(&models.VerificationResult{Valid: true, Signature: "sig-found", Sender: testSender}, nil).Once()

	svc := New(ledgerMock, verifierMock, 10*time.Millisecond, time.Second, 20, discardLogger())
	result, err := svc.Run(context.Background(), testSender, 15_000_000)

	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "sig-found", result.Signature)
	// После успеха тиков больше не было
	ledgerMock.AssertNumberOfCalls(t, "GetSignaturesForAddress", 2)
	verifierMock.AssertExpectations(t)
}

func TestRun_SurvivesTransientRPCFailure(t *testing.T) {
	ledgerMock := new(LedgerMock)
	verifierMock := new(VerifierMock)

	ledgerMock.On("GetSignaturesForAddress", mock.Anything, testSender, 20).
		Return(nil, ledgerclient.ErrUnavailable).Once()
	ledgerMock.On("GetSignaturesForAddress", mock.Anything, testSender, 20).
		Return(freshSignature("sig-after-glitch"), nil).Once()
	verifierMock.On("Verify", mock.Anything, "sig-after-glitch", int64(15_000_000), testSender).
		Return(&models.VerificationResult{Valid: true, Signature: "sig-after-glitch"}, nil).Once()

	svc := New(ledgerMock, verifierMock, 10*time.Millisecond, time.Second, 20, discardLogger())
	result, err := svc.Run(context.Background(), testSender, 15_000_000)

	require.NoError(t, err)
	assert.Equal(t, "sig-after-glitch", result.Signature)
}

func TestRun_FailedTickKeepsWindowOpen(t *testing.T) {
	ledgerMock := new(LedgerMock)
	verifierMock := new(VerifierMock)

	// Транзакция попадает в реестр до первого тика, но сам первый запрос
	// истории завершается ошибкой. Интервал больше секунды, чтобы время
	// тика гарантированно ушло вперед относительно blockTime транзакции.
	blockTime := time.Now().Unix() + 1
	ledgerMock.On("GetSignaturesForAddress", mock.Anything, testSender, 20).
		Return(nil, ledgerclient.ErrUnavailable).Once()
	ledgerMock.On("GetSignaturesForAddress", mock.Anything, testSender, 20).
		Return([]ledgerclient.SignatureInfo{
			{Signature: "sig-during-glitch", Slot: 100, BlockTime: &blockTime},
		}, nil)
	verifierMock.On("Verify", mock.Anything, "sig-during-glitch", int64(15_000_000), testSender).
		Return(&models.VerificationResult{Valid: true, Signature: "sig-during-glitch"}, nil).Once()

	svc := New(ledgerMock, verifierMock, 2100*time.Millisecond, 10*time.Second, 20, discardLogger())
	result, err := svc.Run(context.Background(), testSender, 15_000_000)

	// Ошибочный тик не сдвигает нижнюю границу: транзакция,
	// появившаяся до него, не отфильтровывается как устаревшая
	require.NoError(t, err)
	assert.Equal(t, "sig-during-glitch", result.Signature)
	verifierMock.AssertExpectations(t)
}

func TestRun_TransientVerifyErrorKeepsWindowOpen(t *testing.T) {
	ledgerMock := new(LedgerMock)
	verifierMock := new(VerifierMock)

	blockTime := time.Now().Unix() + 1
	ledgerMock.On("GetSignaturesForAddress", mock.Anything, testSender, 20).
		Return([]ledgerclient.SignatureInfo{
			{Signature: "sig-flaky-verify", Slot: 100, BlockTime: &blockTime},
		}, nil)
	verifierMock.On("Verify", mock.Anything, "sig-flaky-verify", int64(15_000_000), testSender).
		Return(nil, ledgerclient.ErrUnavailable).Once()
	verifierMock.On("Verify", mock.Anything, "sig-flaky-verify", int64(15_000_000), testSender).
		Return(&models.VerificationResult{Valid: true, Signature: "sig-flaky-verify"}, nil).Once()

	svc := New(ledgerMock, verifierMock, 2100*time.Millisecond, 10*time.Second, 20, discardLogger())
	result, err := svc.Run(context.Background(), testSender, 15_000_000)

	// Кандидат с временной ошибкой проверки доступен для повтора
	// на следующем тике, а не отсекается сдвинутым окном
	require.NoError(t, err)
	assert.Equal(t, "sig-flaky-verify", result.Signature)
	verifierMock.AssertNumberOfCalls(t, "Verify", 2)
}

func TestRun_Timeout(t *testing.T) {
	ledgerMock := new(LedgerMock)
	verifierMock := new(VerifierMock)

	ledgerMock.On("GetSignaturesForAddress", mock.Anything, testSender, 20).
		Return([]ledgerclient.SignatureInfo{}, nil)

	svc := New(ledgerMock, verifierMock, 10*time.Millisecond, 60*time.Millisecond, 20, discardLogger())
	start := time.Now()
	_, err := svc.Run(context.Background(), testSender, 15_000_000)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	// Сессия не продолжает тикать после дедлайна
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	verifierMock.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_Cancellation(t *testing.T) {
	ledgerMock := new(LedgerMock)
	verifierMock := new(VerifierMock)

	ledgerMock.On("GetSignaturesForAddress", mock.Anything, testSender, 20).
		Return([]ledgerclient.SignatureInfo{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(25 * time.Millisecond)
		cancel()
	}()

	svc := New(ledgerMock, verifierMock, 10*time.Millisecond, time.Minute, 20, discardLogger())
	start := time.Now()
	_, err := svc.Run(ctx, testSender, 15_000_000)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRun_SkipsTransactionsBeforeWindow(t *testing.T) {
	ledgerMock := new(LedgerMock)
	verifierMock := new(VerifierMock)

	oldBlockTime := time.Now().Add(-time.Hour).Unix()
	ledgerMock.On("GetSignaturesForAddress", mock.Anything, testSender, 20).
		Return([]ledgerclient.SignatureInfo{
			{Signature: "sig-old", Slot: 1, BlockTime: &oldBlockTime},
		}, nil)

	svc := New(ledgerMock, verifierMock, 10*time.Millisecond, 60*time.Millisecond, 20, discardLogger())
	_, err := svc.Run(context.Background(), testSender, 15_000_000)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	// Старая транзакция ни разу не передавалась верификатору
	verifierMock.AssertNotCalled(t, "Verify", mock.Anything, "sig-old", mock.Anything, mock.Anything)
}

func TestRun_DoesNotRecheckRejectedSignature(t *testing.T) {
	ledgerMock := new(LedgerMock)
	verifierMock := new(VerifierMock)

	ledgerMock.On("GetSignaturesForAddress", mock.Anything, testSender, 20).
		Return(freshSignature("sig-rejected"), nil)
	verifierMock.On("Verify", mock.Anything, "sig-rejected", int64(15_000_000), testSender).
		Return(&models.VerificationResult{Valid: false, Reason: models.ReasonAmountMismatch}, nil).Once()

	svc := New(ledgerMock, verifierMock, 10*time.Millisecond, 60*time.Millisecond, 20, discardLogger())
	_, err := svc.Run(context.Background(), testSender, 15_000_000)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	// Отклоненный кандидат проверялся ровно один раз
	verifierMock.AssertNumberOfCalls(t, "Verify", 1)
}
