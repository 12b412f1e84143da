package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/facebookgo/flagenv"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/lwb-io/authkit/adapters/events"
	"github.com/lwb-io/authkit/adapters/identity"
	"github.com/lwb-io/authkit/adapters/store"
	"github.com/lwb-io/authkit/adapters/tokenizer"
	"github.com/lwb-io/authkit/altcha"
	"github.com/lwb-io/authkit/ports"
	"github.com/lwb-io/authkit/service"
	"github.com/lwb-io/authkit/transport/http"
)

var (
	bind = flag.String("bind", ":9000", "address to listen on")

	powSecret    = flag.String("pow-secret", "", "HMAC secret for proof-of-work challenges")
	powPrefixLen = flag.Int("pow-prefix-len", altcha.DefaultPrefixLen, "challenge difficulty, hex digits the digest must match")
	powMaxNumber = flag.Int64("pow-max-number", altcha.DefaultMaxNumber, "upper bound of the solver search space")
	powTTL       = flag.Duration("pow-ttl", altcha.DefaultTTL, "how long an issued challenge stays solvable")

	tokenSecret = flag.String("token-secret", "", "HMAC secret for session tokens")
	tokenTTL    = flag.Duration("token-ttl", tokenizer.DefaultSessionTTL, "session token lifetime")

	redisURL = flag.String("redis-url", "", "redis URL for stores and events, empty runs in-memory")

	oidcIssuer   = flag.String("oidc-issuer", "", "OIDC issuer URL for federated identity, empty disables")
	oidcClientID = flag.String("oidc-client-id", "", "OIDC client ID")

	logLevel = flag.String("log-level", "info", "slog level: debug, info, warn, error")
)

func main() {
	flagenv.Parse()
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *powSecret == "" || *tokenSecret == "" {
		logger.Error("pow-secret and token-secret are required")
		os.Exit(1)
	}

	var (
		users       ports.UserStore
		revocations ports.RevocationStore
		publisher   ports.EventPublisher
	)
	if *redisURL != "" {
		opts, err := redis.ParseURL(*redisURL)
		if err != nil {
			logger.Error("invalid redis URL", "error", err)
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis unreachable", "error", err)
			os.Exit(1)
		}
		users = store.NewRedisUserStore(client)
		revocations = store.NewRedisRevocationStore(client)

		pub, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: client},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			logger.Error("create event publisher", "error", err)
			os.Exit(1)
		}
		publisher = events.NewWatermillPublisher(pub)
		logger.Info("using redis stores", "url", *redisURL)
	} else {
		users = store.NewMemoryUserStore()
		revocations = store.NewMemoryRevocationStore()
		logger.Warn("no redis configured, state will not survive restarts")
	}

	var verifier ports.IdentityVerifier
	if *oidcIssuer != "" {
		v, err := identity.NewOIDCVerifier(context.Background(), *oidcIssuer, *oidcClientID)
		if err != nil {
			logger.Error("OIDC discovery failed", "issuer", *oidcIssuer, "error", err)
			os.Exit(1)
		}
		verifier = v
		logger.Info("federated identity enabled", "issuer", *oidcIssuer)
	} else {
		verifier = identity.NewStaticVerifier()
		logger.Warn("no OIDC issuer configured, federated sign-in disabled")
	}

	issuer := altcha.NewIssuer(altcha.Options{
		Secret:    *powSecret,
		PrefixLen: *powPrefixLen,
		MaxNumber: *powMaxNumber,
		TTL:       *powTTL,
	})

	authService := service.NewAuthService(
		tokenizer.NewJWTTokenizer([]byte(*tokenSecret), *tokenTTL),
		users,
		revocations,
		verifier,
		publisher,
		issuer,
		logger,
	)

	router := http.SetupRouter(authService)
	logger.Info("listening", "bind", *bind)
	if err := router.Run(*bind); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
