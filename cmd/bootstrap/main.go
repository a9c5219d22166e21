// Package main 运维引导工具：数据库迁移、向量集合初始化、embedding 回填与调试令牌签发
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"scholar-match-api/internal/config"
	"scholar-match-api/internal/domain/entity"
	"scholar-match-api/internal/infrastructure/eino/callback"
	"scholar-match-api/internal/infrastructure/persistence/postgres"
	"scholar-match-api/internal/wire"
	"scholar-match-api/pkg/logger"
	"scholar-match-api/pkg/utils"
)

func main() {
	var (
		migrate     = flag.Bool("migrate", false, "run database migrations")
		ensureIndex = flag.Bool("ensure-index", false, "create and load the vector collection")
		backfill    = flag.Bool("backfill", false, "embed profiles whose embedding is missing or stale")
		kinds       = flag.String("kinds", "academician,postgraduate,undergraduate", "profile kinds to backfill")
		mintToken   = flag.Bool("mint-token", false, "print a signed access token for local testing")
		userID      = flag.String("user", "", "token user id")
		role        = flag.String("role", "postgraduate", "token role")
		profileID   = flag.String("profile", "", "token profile id")
		admin       = flag.Bool("admin", false, "token carries admin privileges")
		ttl         = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !*migrate && !*ensureIndex && !*backfill && !*mintToken {
		flag.Usage()
		os.Exit(2)
	}

	if *migrate {
		runMigrate(ctx, cfg)
	}
	if *ensureIndex || *backfill {
		runIndex(ctx, cfg, *ensureIndex, *backfill, *kinds)
	}
	if *mintToken {
		if *userID == "" {
			log.Fatal("-user is required with -mint-token")
		}
		jwtManager := utils.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer)
		token, err := jwtManager.GenerateToken(utils.TokenSubject{
			UserID:    *userID,
			Role:      string(entity.ParseRole(*role)),
			ProfileID: *profileID,
			Admin:     *admin,
		}, *ttl)
		if err != nil {
			log.Fatalf("failed to sign token: %v", err)
		}
		fmt.Println(token)
	}
}

func runMigrate(ctx context.Context, cfg *config.Config) {
	fmt.Println("Running database migrations...")
	data, cleanup, err := wire.InitializePostgresOnly(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize postgres: %v", err)
	}
	defer cleanup()

	if err := postgres.AutoMigrate(ctx, data.PgClient); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	fmt.Println("Migrations completed.")
}

func runIndex(ctx context.Context, cfg *config.Config, ensure, fill bool, kinds string) {
	callback.Init()

	deps, cleanup, err := wire.InitializeBackfill(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize backfill dependencies: %v", err)
	}
	defer cleanup()

	if ensure {
		if deps.VectorIndex == nil {
			log.Fatal("vector index is disabled or unreachable")
		}
		if err := deps.VectorIndex.EnsureReady(ctx); err != nil {
			log.Fatalf("failed to prepare %s collection: %v", deps.VectorIndex.Name(), err)
		}
		fmt.Printf("Vector collection ready on %s.\n", deps.VectorIndex.Name())
	}

	if fill {
		parsed, err := parseKinds(kinds)
		if err != nil {
			log.Fatal(err)
		}
		stats, err := deps.Indexing.Backfill(ctx, parsed)
		if err != nil {
			log.Fatalf("backfill failed: %v", err)
		}
		fmt.Printf("Backfill completed: embedded=%d failed=%d indexed=%d\n", stats.Embedded, stats.Failed, stats.Indexed)
	}
}

func parseKinds(s string) ([]entity.ProfileKind, error) {
	var out []entity.ProfileKind
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind, ok := entity.ParseProfileKind(part)
		if !ok {
			return nil, fmt.Errorf("unknown profile kind %q", part)
		}
		out = append(out, kind)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no profile kinds given")
	}
	return out, nil
}
