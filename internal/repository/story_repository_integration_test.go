package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"story-server/internal/config"
	"story-server/internal/database"
	"story-server/internal/model"
	"story-server/internal/repository"
)

// StoryStoreSuite прогоняет одинаковые сценарии на обоих хранилищах.
type StoryStoreSuite struct {
	suite.Suite
	ctx         context.Context
	logger      *zap.Logger
	pgContainer *postgres.PostgresContainer
	rdContainer *tcredis.RedisContainer
	pgPool      *pgxpool.Pool
	redisClient *redis.Client
	stores      map[string]repository.StoryStore
}

func (s *StoryStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = zap.NewNop()
	var err error

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("stories_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start postgres container")

	dsn, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err)

	s.pgPool, err = database.NewPool(s.ctx, config.PostgresConfig{DSN: dsn, MaxConns: 4}, s.logger)
	require.NoError(s.T(), err, "Failed to connect to test postgres")

	migrator := database.NewMigrator(s.pgPool, s.logger)
	require.NoError(s.T(), migrator.Up(s.ctx), "Failed to run migrations")
	version, dirty, err := migrator.Version(s.ctx)
	require.NoError(s.T(), err)
	require.False(s.T(), dirty)
	require.EqualValues(s.T(), 1, version)

	s.rdContainer, err = tcredis.Run(s.ctx,
		"docker.io/redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("* Ready to accept connections").
				WithOccurrence(1).
				WithStartupTimeout(1*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start redis container")

	redisHost, err := s.rdContainer.Host(s.ctx)
	require.NoError(s.T(), err)
	redisPort, err := s.rdContainer.MappedPort(s.ctx, "6379/tcp")
	require.NoError(s.T(), err)
	s.redisClient = redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port())})
	require.NoError(s.T(), s.redisClient.Ping(s.ctx).Err())

	s.stores = map[string]repository.StoryStore{
		"postgres": repository.NewPgStoryRepository(s.pgPool, s.logger),
		"redis":    repository.NewRedisStoryRepository(s.redisClient, time.Hour, s.logger),
	}
}

func (s *StoryStoreSuite) TearDownSuite() {
	if s.pgPool != nil {
		s.pgPool.Close()
	}
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(s.ctx)
	}
	if s.rdContainer != nil {
		_ = s.rdContainer.Terminate(s.ctx)
	}
}

func (s *StoryStoreSuite) SetupTest() {
	require.NoError(s.T(), s.redisClient.FlushDB(s.ctx).Err())
	_, err := s.pgPool.Exec(s.ctx, "TRUNCATE TABLE stories")
	require.NoError(s.T(), err)
}

func TestStoryStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		t.Skipf("Docker client init error: %v", err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		cli.Close()
		t.Skipf("Docker daemon is not running or accessible: %v", err)
	}
	cli.Close()

	suite.Run(t, new(StoryStoreSuite))
}

func newStory(content string, createdAt time.Time) model.Story {
	return model.Story{
		ID:        uuid.NewString(),
		Theme:     "theme",
		Title:     model.DeriveTitle(content, "theme"),
		Content:   content,
		CreatedAt: createdAt.UTC().Truncate(time.Millisecond),
	}
}

func (s *StoryStoreSuite) forEachStore(fn func(name string, store repository.StoryStore)) {
	for name, store := range s.stores {
		s.Run(name, func() { fn(name, store) })
	}
}

func (s *StoryStoreSuite) TestSaveAndListNewestFirst() {
	s.forEachStore(func(_ string, store repository.StoryStore) {
		base := time.Now().Add(-time.Hour)
		older := newStory("Older story", base)
		newer := newStory("Newer story", base.Add(time.Minute))

		s.Require().NoError(store.Save(s.ctx, "owner-1", older))
		s.Require().NoError(store.Save(s.ctx, "owner-1", newer))
		s.Require().NoError(store.Save(s.ctx, "owner-2", newStory("Someone else", base)))

		stories, err := store.List(s.ctx, "owner-1", 0)
		s.Require().NoError(err)
		s.Require().Len(stories, 2)
		s.Equal(newer.ID, stories[0].ID)
		s.Equal(older.ID, stories[1].ID)
		s.Equal("Newer story", stories[0].Title)
		s.Nil(stories[0].ImageURL)

		limited, err := store.List(s.ctx, "owner-1", 1)
		s.Require().NoError(err)
		s.Len(limited, 1)
	})
}

func (s *StoryStoreSuite) TestSaveIsUpsert() {
	s.forEachStore(func(_ string, store repository.StoryStore) {
		story := newStory("Text only", time.Now())
		s.Require().NoError(store.Save(s.ctx, "owner-1", story))
		s.Require().NoError(store.Save(s.ctx, "owner-1", story.WithImage("https://img/1.png")))

		stories, err := store.List(s.ctx, "owner-1", 10)
		s.Require().NoError(err)
		s.Require().Len(stories, 1)
		s.Require().NotNil(stories[0].ImageURL)
		s.Equal("https://img/1.png", *stories[0].ImageURL)
	})
}

func (s *StoryStoreSuite) TestUpdate() {
	s.forEachStore(func(_ string, store repository.StoryStore) {
		story := newStory("Original", time.Now())
		s.Require().NoError(store.Save(s.ctx, "owner-1", story))

		story.Content = "Edited"
		s.Require().NoError(store.Update(s.ctx, "owner-1", story))

		stories, err := store.List(s.ctx, "owner-1", 10)
		s.Require().NoError(err)
		s.Require().Len(stories, 1)
		s.Equal("Edited", stories[0].Content)

		missing := newStory("Missing", time.Now())
		s.ErrorIs(store.Update(s.ctx, "owner-1", missing), model.ErrNotFound)
		s.ErrorIs(store.Update(s.ctx, "owner-2", story), model.ErrNotFound)
	})
}

func (s *StoryStoreSuite) TestDeleteAndClear() {
	s.forEachStore(func(_ string, store repository.StoryStore) {
		a := newStory("A", time.Now())
		b := newStory("B", time.Now().Add(time.Second))
		s.Require().NoError(store.Save(s.ctx, "owner-1", a))
		s.Require().NoError(store.Save(s.ctx, "owner-1", b))

		s.Require().NoError(store.Delete(s.ctx, "owner-1", a.ID))
		s.ErrorIs(store.Delete(s.ctx, "owner-1", a.ID), model.ErrNotFound)

		stories, err := store.List(s.ctx, "owner-1", 10)
		s.Require().NoError(err)
		s.Require().Len(stories, 1)
		s.Equal(b.ID, stories[0].ID)

		s.Require().NoError(store.Clear(s.ctx, "owner-1"))
		stories, err = store.List(s.ctx, "owner-1", 10)
		s.Require().NoError(err)
		s.Empty(stories)
	})
}

func (s *StoryStoreSuite) TestPostgresTitleFallback() {
	_, err := s.pgPool.Exec(s.ctx,
		`INSERT INTO stories (id, user_id, theme, title, content) VALUES ($1, $2, $3, '', $4)`,
		uuid.NewString(), "owner-1", "Dragons", "A very long first line that is definitely longer than fifty characters\nrest")
	s.Require().NoError(err)

	stories, err := s.stores["postgres"].List(s.ctx, "owner-1", 10)
	s.Require().NoError(err)
	s.Require().Len(stories, 1)
	s.Equal("A very long first line that is definitely longer t", stories[0].Title)
}

func (s *StoryStoreSuite) TestPostgresRejectsForeignID() {
	store := s.stores["postgres"]
	story := newStory("Mine", time.Now())
	s.Require().NoError(store.Save(s.ctx, "owner-1", story))

	err := store.Save(s.ctx, "owner-2", story)
	s.ErrorIs(err, model.ErrInvalidInput)
}

func (s *StoryStoreSuite) TestRedisTTL() {
	store := s.stores["redis"]
	s.Require().NoError(store.Save(s.ctx, "owner-ttl", newStory("Expiring", time.Now())))

	ttl, err := s.redisClient.TTL(s.ctx, "stories:owner-ttl").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 59*time.Minute)
	ttl, err = s.redisClient.TTL(s.ctx, "stories:owner-ttl:order").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 59*time.Minute)
}
