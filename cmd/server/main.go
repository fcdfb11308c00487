package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/buildtrack/buildtrack"
)

func main() {
	cfg := buildtrack.EnvConfig{}

	db, err := openDatabase(cfg.GetDatabaseDSN())
	if err != nil {
		log.Fatalf("database open: %v", err)
	}
	defer db.Close()

	repo := buildtrack.NewRepositoryManager(db)
	repo.MustValidate()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := createSchema(ctx, db); err != nil {
		log.Fatalf("schema setup: %v", err)
	}

	logger := buildtrack.NewAppLogger()
	mailer := buildtrack.NewLogMailer(logger)

	tokens := buildtrack.NewTokenService(
		[]byte(cfg.GetSigningKey()),
		cfg.GetTokenExpirationDays(),
		cfg.GetIssuer(),
		logger,
	)

	accounts := buildtrack.NewAccounts(repo, mailer, tokens,
		buildtrack.WithAccountsLogger(logger),
	)

	hub := buildtrack.NewChatHub(logger)

	app := fiber.New(fiber.Config{
		AppName:      "buildtrack",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})
	app.Use(recover.New())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": "buildtrack"})
	})

	authware := buildtrack.RequireAuth(tokens, repo, logger)
	adminware := buildtrack.RequireAdmin(logger)

	buildtrack.RegisterAuthRoutes(
		app.Group("/api/auth"),
		buildtrack.NewAuthController(accounts, logger),
		authware, adminware,
	)

	buildtrack.RegisterChatRoutes(
		app.Group("/api/chat"),
		buildtrack.NewChatController(repo, hub, logger),
		authware, adminware,
	)

	app.Use("/ws", buildtrack.SocketUpgrade)
	app.Get("/ws/chat", buildtrack.ChatSocketHandler(hub, repo, logger))

	go func() {
		if err := app.Listen(cfg.GetListenAddr()); err != nil {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func openDatabase(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}

func createSchema(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*buildtrack.Employee)(nil),
		(*buildtrack.Site)(nil),
		(*buildtrack.EmployeeSite)(nil),
		(*buildtrack.ChatMessage)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
	}

	return nil
}
