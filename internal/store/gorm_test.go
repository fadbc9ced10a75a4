package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"murmur/internal/db"
	"murmur/internal/models"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Integration tests for GormStore against a real Postgres started with
// testcontainers-go (postgres:16-alpine).
//
//   GO_TEST_INTEGRATION=1 go test ./internal/store -run Gorm -v -count=1

func startPostgres(t *testing.T) *GormStore {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "docker.io/postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "user", "POSTGRES_PASSWORD": "pass", "POSTGRES_DB": "db"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://user:pass@%s:%s/db?sslmode=disable", host, port.Port())

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(32)

	return NewGorm(gdb)
}

func TestGorm_ConcurrentGetOrCreate(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()

	const workers = 16
	ids := make([]uint, workers)
	authorIDs := make([]uint, workers)
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			err := s.Tx(ctx, func(tx Tx) error {
				th, err := tx.GetOrCreateThread("brand-new")
				if err != nil {
					return err
				}
				a, err := tx.GetOrCreateAuthor("newcomer")
				if err != nil {
					return err
				}
				ids[i] = th.ID
				authorIDs[i] = a.ID
				return nil
			})
			errs <- err
		}(i)
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for i := 1; i < workers; i++ {
		require.Equal(t, ids[0], ids[i])
		require.Equal(t, authorIDs[0], authorIDs[i])
	}

	var threads, authors int64
	require.NoError(t, s.db.Model(&models.Thread{}).Where("name = ?", "brand-new").Count(&threads).Error)
	require.NoError(t, s.db.Model(&models.Author{}).Where("name = ?", "newcomer").Count(&authors).Error)
	require.EqualValues(t, 1, threads)
	require.EqualValues(t, 1, authors)
}

func TestGorm_CommentLifecycle(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()

	var root, reply models.Comment
	require.NoError(t, s.Tx(ctx, func(tx Tx) error {
		th, err := tx.GetOrCreateThread("t1")
		if err != nil {
			return err
		}
		a, err := tx.GetOrCreateAuthor("alice")
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		root = models.Comment{Text: "root", Created: now, Modified: now, ThreadID: th.ID, AuthorID: a.ID}
		if err := tx.InsertComment(&root); err != nil {
			return err
		}
		reply = models.Comment{Text: "reply", Created: now, Modified: now, ThreadID: th.ID, AuthorID: a.ID, ParentID: &root.ID}
		return tx.InsertComment(&reply)
	}))

	require.NoError(t, s.Tx(ctx, func(tx Tx) error {
		got, err := tx.Comment(root.ID, LockUpdate)
		require.NoError(t, err)
		require.Equal(t, "alice", got.Author.Name)
		require.Equal(t, "t1", got.Thread.Name)

		n, err := tx.CountChildren(root.ID)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)

		require.ErrorIs(t, tx.DeleteComment(root.ID), ErrHasChildren)
		return nil
	}))

	require.NoError(t, s.Tx(ctx, func(tx Tx) error {
		if err := tx.DeleteComment(reply.ID); err != nil {
			return err
		}
		return tx.DeleteComment(root.ID)
	}))

	require.NoError(t, s.Tx(ctx, func(tx Tx) error {
		_, err := tx.Comment(root.ID, LockNone)
		require.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

func TestGorm_ConcurrentVotesKeepTallies(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()

	var comment models.Comment
	require.NoError(t, s.Tx(ctx, func(tx Tx) error {
		th, err := tx.GetOrCreateThread("votes")
		if err != nil {
			return err
		}
		a, err := tx.GetOrCreateAuthor("owner")
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		comment = models.Comment{Text: "vote on me", Created: now, Modified: now, ThreadID: th.ID, AuthorID: a.ID}
		return tx.InsertComment(&comment)
	}))

	const voters = 12
	var wg sync.WaitGroup
	errs := make(chan error, voters)
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Tx(ctx, func(tx Tx) error {
				if _, err := tx.Comment(comment.ID, LockUpdate); err != nil {
					return err
				}
				a, err := tx.GetOrCreateAuthor(fmt.Sprintf("voter-%d", i))
				if err != nil {
					return err
				}
				like := i%3 != 0
				if err := tx.InsertVote(&models.Vote{CommentID: comment.ID, AuthorID: a.ID, Like: like}); err != nil {
					return err
				}
				if like {
					return tx.AdjustTallies(comment.ID, 1, 0)
				}
				return tx.AdjustTallies(comment.ID, 0, 1)
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.NoError(t, s.Tx(ctx, func(tx Tx) error {
		got, err := tx.Comment(comment.ID, LockNone)
		require.NoError(t, err)
		require.Equal(t, 8, got.Likes)
		require.Equal(t, 4, got.Dislikes)

		likes, dislikes, err := tx.RecountTallies(comment.ID)
		require.NoError(t, err)
		require.Equal(t, got.Likes, likes)
		require.Equal(t, got.Dislikes, dislikes)
		return nil
	}))
}
