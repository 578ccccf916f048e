package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vstep-dao/vstep-hub/internal/domain/account"
	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
)

// startPostgres runs a throwaway database with the schema applied. It skips
// when Docker is not reachable.
func startPostgres(t *testing.T) *Connection {
	t.Helper()
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()

	var (
		container *tcpostgres.PostgresContainer
		err       error
	)
	func() {
		// testcontainers panics when no docker host can be found.
		defer func() {
			if r := recover(); r != nil {
				t.Skipf("docker unavailable: %v", r)
			}
		}()
		container, err = tcpostgres.RunContainer(ctx,
			testcontainers.WithImage("postgres:16-alpine"),
			tcpostgres.WithDatabase("vstep"),
			tcpostgres.WithUsername("vstep"),
			tcpostgres.WithPassword("vstep"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(time.Minute),
			),
		)
	}()
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := NewConnectionFromURL(ctx, dsn, PoolOptions{MaxConns: 16})
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	require.NoError(t, NewMigrator(conn).Migrate(ctx))
	return conn
}

func newTestAccount(t *testing.T, userID, studentID string) *account.Account {
	t.Helper()
	a, err := account.NewAccount(account.NewAccountParams{
		UserID:    userID,
		StudentID: studentID,
		CardID:    "STU_" + studentID,
		Now:       time.Now().UTC(),
	})
	require.NoError(t, err)
	return a
}

func TestAccountRepository_ConsumeAttemptIsAtomic(t *testing.T) {
	conn := startPostgres(t)
	repo := NewAccountRepository(conn)
	ctx := context.Background()

	const userID = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
	require.NoError(t, repo.Create(ctx, newTestAccount(t, userID, "SV-001")))

	// Two free attempts are shared by every concurrent caller.
	const callers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exhausted int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := repo.ConsumeAttempt(ctx, userID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case shared.IsQuotaExceeded(err):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, account.InitialAttempts, succeeded)
	assert.Equal(t, callers-account.InitialAttempts, exhausted)

	got, err := repo.GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, got.RemainingAttempts)
}

func TestAccountRepository_Lifecycle(t *testing.T) {
	conn := startPostgres(t)
	repo := NewAccountRepository(conn)
	ctx := context.Background()

	const userID = "0xabcdef0123456789abcdef0123456789abcdef01"
	require.NoError(t, repo.Create(ctx, newTestAccount(t, userID, "SV-001")))

	err := repo.Create(ctx, newTestAccount(t, userID, "SV-002"))
	assert.True(t, shared.IsDuplicate(err))

	err = repo.Create(ctx, newTestAccount(t, "0x1111111111111111111111111111111111111111", "SV-001"))
	assert.ErrorIs(t, err, shared.ErrStudentAlreadyLinked)

	linked, err := repo.ExistsByHashedStudentID(ctx, account.HashStudentID("SV-001"))
	require.NoError(t, err)
	assert.True(t, linked)

	remaining, err := repo.ConsumeAttempt(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, account.InitialAttempts-1, remaining)

	remaining, err = repo.GrantAttempts(ctx, userID, 3)
	require.NoError(t, err)
	assert.Equal(t, account.InitialAttempts+2, remaining)

	_, err = repo.ConsumeAttempt(ctx, "0x2222222222222222222222222222222222222222")
	assert.True(t, shared.IsNotFound(err))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
