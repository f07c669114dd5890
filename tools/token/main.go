// Command token issues API bearer tokens and signs machine uploads for
// local testing.
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"pv-telemetry/internal/auth"
)

type config struct {
	role     string
	subject  string
	ttl      time.Duration
	secret   string
	signFile string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, time.Now))
}

func run(args []string, stdout, stderr io.Writer, now func() time.Time) int {
	logger := log.New(stderr, "token: ", 0)
	cfg, err := parseConfig(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		logger.Print(err)
		return 2
	}

	if cfg.signFile != "" {
		body, err := os.ReadFile(cfg.signFile)
		if err != nil {
			logger.Print(err)
			return 1
		}
		ts := strconv.FormatInt(now().Unix(), 10)
		fmt.Fprintf(stdout, "%s: %s\n", auth.HeaderIngestTimestamp, ts)
		fmt.Fprintf(stdout, "%s: %s\n", auth.HeaderIngestSignature, auth.SignIngest([]byte(cfg.secret), ts, body))
		return 0
	}

	role, ok := auth.NormalizeRole(cfg.role)
	if !ok {
		logger.Printf("unknown role %q", cfg.role)
		return 2
	}
	issued := now()
	signed, err := auth.SignJWT([]byte(cfg.secret), role, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   cfg.subject,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(cfg.ttl)),
	})
	if err != nil {
		logger.Print(err)
		return 1
	}
	fmt.Fprintln(stdout, signed)
	return 0
}

func parseConfig(args []string, stderr io.Writer) (config, error) {
	cfg := config{}
	flags := pflag.NewFlagSet("token", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&cfg.role, "role", string(auth.RoleViewer), "viewer, operator or admin")
	flags.StringVar(&cfg.subject, "subject", "local", "token subject")
	flags.DurationVar(&cfg.ttl, "ttl", time.Hour, "token lifetime")
	flags.StringVar(&cfg.signFile, "sign-file", "", "print ingest signature headers for FILE instead of a token")
	if err := flags.Parse(args); err != nil {
		return cfg, err
	}
	secretEnv := "AUTH_JWT_SECRET"
	if cfg.signFile != "" {
		secretEnv = "INGEST_HMAC_SECRET"
	}
	cfg.secret = os.Getenv(secretEnv)
	if cfg.secret == "" {
		return cfg, fmt.Errorf("%s is not set", secretEnv)
	}
	if cfg.ttl <= 0 {
		return cfg, errors.New("--ttl must be positive")
	}
	return cfg, nil
}
